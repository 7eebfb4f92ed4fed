package seed

import (
	_ "embed"
	"fmt"
	"os"

	"folio/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/demo.yaml
var demoFixtures []byte

// Fixtures is a hand-written data set: named users and the posts they wrote,
// with their moderation outcome, likes and comment threads.
type Fixtures struct {
	Users []UserFixture `yaml:"users"`
	Posts []PostFixture `yaml:"posts"`
}

// UserFixture declares an account.
type UserFixture struct {
	Username string      `yaml:"username"`
	Role     models.Role `yaml:"role"`
}

// PostFixture declares a post. Status defaults to pending.
type PostFixture struct {
	Author          string            `yaml:"author"`
	Title           string            `yaml:"title"`
	Body            string            `yaml:"body"`
	Excerpt         string            `yaml:"excerpt"`
	CoverImage      string            `yaml:"cover_image"`
	Category        models.Category   `yaml:"category"`
	Tags            []string          `yaml:"tags"`
	Status          models.PostStatus `yaml:"status"`
	RejectionReason string            `yaml:"rejection_reason"`
	LikedBy         []string          `yaml:"liked_by"`
	Comments        []CommentFixture  `yaml:"comments"`
}

// CommentFixture declares a top-level comment or, inside Replies, a reply.
type CommentFixture struct {
	Author  string           `yaml:"author"`
	Content string           `yaml:"content"`
	LikedBy []string         `yaml:"liked_by"`
	Replies []CommentFixture `yaml:"replies"`
}

// DemoFixtures returns the data set bundled with the binary.
func DemoFixtures() (*Fixtures, error) {
	return ParseFixtures(demoFixtures)
}

// LoadFixtureFile reads and validates a YAML fixture file.
func LoadFixtureFile(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes YAML and checks that every reference resolves.
// Content rules (lengths, categories) are left to the services.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

func (fx *Fixtures) validate() error {
	users := make(map[string]bool, len(fx.Users))
	for i, u := range fx.Users {
		if u.Username == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if users[u.Username] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		switch u.Role {
		case "", models.RoleUser, models.RoleAdmin:
		default:
			return fmt.Errorf("users[%d]: unknown role %q", i, u.Role)
		}
		users[u.Username] = true
	}

	known := func(where, name string) error {
		if !users[name] {
			return fmt.Errorf("%s: unknown user %q", where, name)
		}
		return nil
	}

	for i, p := range fx.Posts {
		where := fmt.Sprintf("posts[%d]", i)
		if err := known(where+".author", p.Author); err != nil {
			return err
		}
		if p.Status != "" && !p.Status.IsValid() {
			return fmt.Errorf("%s: unknown status %q", where, p.Status)
		}
		if p.Status == models.PostStatusRejected && p.RejectionReason == "" {
			return fmt.Errorf("%s: rejected posts need a rejection_reason", where)
		}
		if p.Status != models.PostStatusPublished && (len(p.LikedBy) > 0 || len(p.Comments) > 0) {
			return fmt.Errorf("%s: only published posts can carry likes or comments", where)
		}
		for _, name := range p.LikedBy {
			if err := known(where+".liked_by", name); err != nil {
				return err
			}
		}
		for j, c := range p.Comments {
			cw := fmt.Sprintf("%s.comments[%d]", where, j)
			if err := c.validate(cw, known); err != nil {
				return err
			}
			for k, r := range c.Replies {
				rw := fmt.Sprintf("%s.replies[%d]", cw, k)
				if len(r.Replies) > 0 {
					return fmt.Errorf("%s: replies cannot have replies", rw)
				}
				if err := r.validate(rw, known); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c CommentFixture) validate(where string, known func(string, string) error) error {
	if err := known(where+".author", c.Author); err != nil {
		return err
	}
	for _, name := range c.LikedBy {
		if err := known(where+".liked_by", name); err != nil {
			return err
		}
	}
	return nil
}
