package vault

import "github.com/Gideonite22/clarity-trend-vault/shared/models"

// AddReview records the sender's rating of a product, replacing any earlier
// review by the same sender. The product does not have to be listed.
func (v *Vault) AddReview(env *Env, productID, rating uint64, comment string) error {
	if err := v.checkSender(env); err != nil {
		return err
	}
	if productID == 0 {
		return NewError(CodeInvalidInput, "product id must be positive")
	}
	if rating < MinRating || rating > MaxRating {
		return NewError(CodeInvalidInput, "rating %d is outside %d-%d", rating, MinRating, MaxRating)
	}
	if err := validateText("review comment", comment, 0, MaxCommentLength); err != nil {
		return err
	}

	key := reviewKey{productID: productID, reviewer: env.Sender}
	totals := v.ratings[productID]
	if old, ok := v.reviews[key]; ok {
		totals.total -= old.Rating
	} else {
		totals.count++
	}
	totals.total += rating
	v.ratings[productID] = totals
	v.reviews[key] = Review{
		ProductID: productID,
		Reviewer:  env.Sender,
		Rating:    rating,
		Comment:   comment,
	}
	env.emit(models.VaultEvent{
		Kind:      models.EventReviewAdded,
		ProductID: productID,
		Rating:    rating,
	})
	return nil
}

// GetReview returns reviewer's review of a product.
func (v *Vault) GetReview(productID uint64, reviewer Principal) Option[Review] {
	if r, ok := v.reviews[reviewKey{productID: productID, reviewer: reviewer}]; ok {
		return Some(r)
	}
	return None[Review]()
}

// GetReviewSummary returns the rating count and average of a product.
func (v *Vault) GetReviewSummary(productID uint64) ReviewSummary {
	totals := v.ratings[productID]
	summary := ReviewSummary{ProductID: productID, Count: totals.count, Total: totals.total}
	if totals.count > 0 {
		summary.Average = float64(totals.total) / float64(totals.count)
	}
	return summary
}
