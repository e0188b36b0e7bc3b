package marketplace

// validateTiers checks an instant-rent pricing rule set against the
// request duration: offsets must be strictly increasing and none may
// exceed the duration. An empty set is valid (auction-only request).
func validateTiers(tiers []PricingTier, durationMinutes uint64) error {
	for i, tier := range tiers {
		if tier.StartMinute > durationMinutes {
			return ErrInvalidInput
		}
		if i > 0 && tier.StartMinute <= tiers[i-1].StartMinute {
			return ErrInvalidInput
		}
	}
	return nil
}

// instantRentPrice computes the required deposit for an instant-rent
// offer covering minutes [startMinute, startMinute+durationMinutes) of
// the rental window. The tiers partition the window by offset: each
// minute is charged at the price of the latest tier whose offset is not
// past it. Minutes before the first tier offset are charged at the first
// tier's price, so the earliest tier anchors the partition.
func instantRentPrice(tiers []PricingTier, startMinute, durationMinutes uint64) uint64 {
	if len(tiers) == 0 || durationMinutes == 0 {
		return 0
	}

	end := startMinute + durationMinutes
	var total uint64
	for i, tier := range tiers {
		bandStart := tier.StartMinute
		if i == 0 {
			bandStart = 0
		}
		bandEnd := end
		if i+1 < len(tiers) && tiers[i+1].StartMinute < bandEnd {
			bandEnd = tiers[i+1].StartMinute
		}

		lo := bandStart
		if startMinute > lo {
			lo = startMinute
		}
		hi := bandEnd
		if end < hi {
			hi = end
		}
		if hi > lo {
			total += (hi - lo) * tier.PricePerMinute
		}
	}
	return total
}
