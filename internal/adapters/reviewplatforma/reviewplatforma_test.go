package reviewplatforma

import (
	"testing"
)

func TestToPost_MapsStarRatingIntoMetadata(t *testing.T) {
	raw := map[string]any{
		"reviewId": "r1", "pros": "great support", "cons": "pricey",
		"starRating": float64(4), "helpfulCount": float64(10), "reviewerName": "jane",
		"reviewDate": "2024-01-15", "reviewUrl": "https://g2.example/r/r1",
	}
	p, ok := toPost(raw, "acme-crm", 0)
	if !ok {
		t.Fatal("toPost() ok = false, want true")
	}
	if p.Metadata["star_rating"] != float64(4) {
		t.Errorf("star_rating = %v, want 4", p.Metadata["star_rating"])
	}
	if p.Upvotes != 10 {
		t.Errorf("Upvotes = %d, want 10", p.Upvotes)
	}
	if p.ID != "review-platform-a_r1" {
		t.Errorf("ID = %q", p.ID)
	}
	if p.Body == "" {
		t.Error("Body should combine pros/cons")
	}
}

func TestToPost_DropsEmptyReview(t *testing.T) {
	_, ok := toPost(map[string]any{}, "acme-crm", 0)
	if ok {
		t.Error("toPost() should drop reviews with no title/body")
	}
}

func TestToPost_FallsBackToSyntheticID(t *testing.T) {
	p, ok := toPost(map[string]any{"pros": "good"}, "acme-crm", 3)
	if !ok {
		t.Fatal("toPost() ok = false")
	}
	if p.ID != "review-platform-a_acme-crm_3" {
		t.Errorf("ID = %q, want synthetic fallback", p.ID)
	}
}
