package service

import (
	"fmt"
	"strings"

	"folio/internal/models"
)

const (
	maxExcerptLength = 300
	maxClientToken   = 64
)

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return models.NewValidationError("Title is required")
	}
	if runeLen(title) > models.MaxTitleLength {
		return models.NewValidationError(fmt.Sprintf("Title too long (max %d characters)", models.MaxTitleLength))
	}
	return nil
}

func validateBody(body string) error {
	if runeLen(strings.TrimSpace(body)) < models.MinBodyLength {
		return models.NewValidationError(fmt.Sprintf("Body must be at least %d characters", models.MinBodyLength))
	}
	return nil
}

func validateCategory(c models.Category) error {
	if !c.IsValid() {
		return models.NewValidationError(fmt.Sprintf("Invalid category %q", c))
	}
	return nil
}

func validateTags(tags []string) error {
	tags = models.NormalizeTags(tags)
	if len(tags) > models.MaxTags {
		return models.NewValidationError(fmt.Sprintf("At most %d tags are allowed", models.MaxTags))
	}
	for _, t := range tags {
		if runeLen(t) > models.MaxTagLength {
			return models.NewValidationError(fmt.Sprintf("Tag %q too long (max %d characters)", t, models.MaxTagLength))
		}
	}
	return nil
}

func validateExcerpt(excerpt string) error {
	if runeLen(excerpt) > maxExcerptLength {
		return models.NewValidationError(fmt.Sprintf("Excerpt too long (max %d characters)", maxExcerptLength))
	}
	return nil
}

func validateDraft(d models.PostDraft) error {
	for _, err := range []error{
		validateTitle(d.Title),
		validateBody(d.Body),
		validateCategory(d.Category),
		validateTags(d.Tags),
		validateExcerpt(d.Excerpt),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func validateEdit(e models.PostEdit) error {
	if e.Title != nil {
		if err := validateTitle(*e.Title); err != nil {
			return err
		}
	}
	if e.Body != nil {
		if err := validateBody(*e.Body); err != nil {
			return err
		}
	}
	if e.Category != nil {
		if err := validateCategory(*e.Category); err != nil {
			return err
		}
	}
	if e.SetTags {
		if err := validateTags(e.Tags); err != nil {
			return err
		}
	}
	if e.Excerpt != nil {
		return validateExcerpt(*e.Excerpt)
	}
	return nil
}

func validateCommentContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return models.NewValidationError("Content is required")
	}
	if runeLen(content) > models.MaxCommentLength {
		return models.NewValidationError(fmt.Sprintf("Comment too long (max %d characters)", models.MaxCommentLength))
	}
	return nil
}

func validateReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return models.NewValidationError("Rejection reason is required")
	}
	if runeLen(reason) > models.MaxReasonLength {
		return models.NewValidationError(fmt.Sprintf("Rejection reason too long (max %d characters)", models.MaxReasonLength))
	}
	return nil
}
