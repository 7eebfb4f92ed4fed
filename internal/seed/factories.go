// Package seed creates demo data for development databases. Everything it
// writes goes through the service layer, so seeded counters, slugs and
// moderation states obey the same rules as real traffic.
package seed

import (
	"fmt"
	"strings"

	"folio/internal/models"
	"folio/internal/service"

	"github.com/brianvoe/gofakeit/v6"
)

var rejectionReasons = []string{
	"Please cite your sources.",
	"This reads like an advertisement.",
	"Off topic for the selected category.",
	"Needs a clearer structure before publication.",
	"Duplicate of an existing post.",
}

// Factory builds randomized inputs for the services. A zero seed picks a
// random one.
type Factory struct {
	faker *gofakeit.Faker
}

// NewFactory returns a Factory driven by seed.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed)}
}

// Username returns a unique-enough handle; n disambiguates repeats.
func (f *Factory) Username(n int) string {
	name := fmt.Sprintf("%s%d", strings.ToLower(f.faker.Username()), n)
	if len(name) > 50 {
		name = name[len(name)-50:]
	}
	return name
}

// PostInput returns a valid post submission.
func (f *Factory) PostInput() service.CreatePostInput {
	title := strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 8)), ".")
	if len(title) > models.MaxTitleLength {
		title = title[:models.MaxTitleLength]
	}

	body := f.faker.Paragraph(f.faker.Number(2, 6), f.faker.Number(3, 6), 14, "\n\n")
	for len(body) < models.MinBodyLength {
		body += " " + f.faker.Sentence(12)
	}

	tags := make([]string, f.faker.Number(0, 3))
	for i := range tags {
		tags[i] = strings.ToLower(f.faker.Word())
	}

	in := service.CreatePostInput{
		Title:    title,
		Body:     body,
		Category: models.Categories[f.faker.Number(0, len(models.Categories)-1)],
		Tags:     tags,
	}
	if f.Chance(0.4) {
		in.CoverImage = fmt.Sprintf("https://picsum.photos/seed/%s/1200/630", f.faker.UUID())
	}
	if f.Chance(0.3) {
		in.Excerpt = f.faker.Sentence(18)
	}
	return in
}

// CommentContent returns a short comment body.
func (f *Factory) CommentContent() string {
	return f.faker.Sentence(f.faker.Number(4, 20))
}

// RejectionReason picks a moderator note.
func (f *Factory) RejectionReason() string {
	return rejectionReasons[f.faker.Number(0, len(rejectionReasons)-1)]
}

// Intn returns a number in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

// Chance reports true with probability p.
func (f *Factory) Chance(p float64) bool {
	return f.faker.Float64Range(0, 1) < p
}
