package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/service"

	"gorm.io/gorm"
)

// moderatorName is the admin used to approve and reject seeded posts.
const moderatorName = "seed_moderator"

// Options configure a random seeding run.
type Options struct {
	NumUsers           int
	NumPosts           int
	MaxCommentsPerPost int
	MaxLikesPerPost    int
	// PublishRatio and RejectRatio split posts between moderation outcomes;
	// the remainder stays pending.
	PublishRatio float64
	RejectRatio  float64
	// Seed makes the run reproducible. Zero picks a random seed.
	Seed int64
}

// DefaultOptions returns a small, mostly published data set.
func DefaultOptions() Options {
	return Options{
		NumUsers:           20,
		NumPosts:           60,
		MaxCommentsPerPost: 6,
		MaxLikesPerPost:    10,
		PublishRatio:       0.7,
		RejectRatio:        0.1,
	}
}

// Summary counts what a run created.
type Summary struct {
	Users     int
	Posts     int
	Published int
	Rejected  int
	Comments  int
	Likes     int
}

func (s *Summary) add(o *Summary) {
	s.Users += o.Users
	s.Posts += o.Posts
	s.Published += o.Published
	s.Rejected += o.Rejected
	s.Comments += o.Comments
	s.Likes += o.Likes
}

// Seeder writes demo data through the services.
type Seeder struct {
	db         *gorm.DB
	store      *repository.Store
	posts      *service.PostService
	moderation *service.ModerationService
	comments   *service.CommentService
}

// NewSeeder returns a Seeder bound to db. Seeding does not touch the list
// cache or publish events.
func NewSeeder(db *gorm.DB) *Seeder {
	store := repository.NewStore(db)
	return &Seeder{
		db:         db,
		store:      store,
		posts:      service.NewPostService(store, nil, nil),
		moderation: service.NewModerationService(store, nil, nil),
		comments:   service.NewCommentService(store, nil),
	}
}

// ClearAll removes every row the application owns.
func (s *Seeder) ClearAll(ctx context.Context) error {
	middleware.Logger.InfoContext(ctx, "Clearing existing data")
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "postgres" {
		return db.Exec(`TRUNCATE TABLE comment_likes, comments, post_likes, posts, users RESTART IDENTITY CASCADE`).Error
	}
	return db.Transaction(func(tx *gorm.DB) error {
		tx = tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, m := range []interface{}{&models.CommentLike{}, &models.Comment{}, &models.PostLike{}, &models.Post{}, &models.User{}} {
			if err := tx.Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureUser returns the active account named username, creating it with
// role when missing. An existing account keeps its role unless role is admin.
func EnsureUser(ctx context.Context, users repository.UserRepository, username string, role models.Role) (*models.User, error) {
	if role == "" {
		role = models.RoleUser
	}
	u, err := users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		u = &models.User{Username: username, Role: role, IsActive: true}
		if err := users.Create(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	case err != nil:
		return nil, err
	}
	if role == models.RoleAdmin && u.Role != models.RoleAdmin {
		if err := users.SetRole(ctx, u.ID, models.RoleAdmin); err != nil {
			return nil, err
		}
		u.Role = models.RoleAdmin
	}
	return u, nil
}

func (s *Seeder) moderator(ctx context.Context) (models.Principal, error) {
	u, err := EnsureUser(ctx, s.store.Users, moderatorName, models.RoleAdmin)
	if err != nil {
		return models.Principal{}, fmt.Errorf("ensure moderator: %w", err)
	}
	return models.PrincipalFromUser(u), nil
}

// ApplyFixtures creates the users, posts, likes and threads fx declares.
func (s *Seeder) ApplyFixtures(ctx context.Context, fx *Fixtures) (*Summary, error) {
	admin, err := s.moderator(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	people := make(map[string]models.Principal, len(fx.Users))
	for _, uf := range fx.Users {
		u, err := EnsureUser(ctx, s.store.Users, uf.Username, uf.Role)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", uf.Username, err)
		}
		people[uf.Username] = models.PrincipalFromUser(u)
		sum.Users++
	}

	for _, pf := range fx.Posts {
		post, err := s.posts.CreatePost(ctx, people[pf.Author], service.CreatePostInput{
			Title:      pf.Title,
			Body:       pf.Body,
			Excerpt:    pf.Excerpt,
			CoverImage: pf.CoverImage,
			Category:   pf.Category,
			Tags:       pf.Tags,
		})
		if err != nil {
			return nil, fmt.Errorf("post %q: %w", pf.Title, err)
		}
		sum.Posts++

		switch pf.Status {
		case models.PostStatusPublished:
			if _, err := s.moderation.ApprovePost(ctx, admin, post.ID); err != nil {
				return nil, fmt.Errorf("approve %q: %w", pf.Title, err)
			}
			sum.Published++
		case models.PostStatusRejected:
			if _, err := s.moderation.RejectPost(ctx, admin, post.ID, pf.RejectionReason); err != nil {
				return nil, fmt.Errorf("reject %q: %w", pf.Title, err)
			}
			sum.Rejected++
		}

		for _, name := range pf.LikedBy {
			if _, err := s.posts.ToggleLike(ctx, people[name], post.ID); err != nil {
				return nil, fmt.Errorf("like %q: %w", pf.Title, err)
			}
			sum.Likes++
		}

		for _, cf := range pf.Comments {
			n, err := s.applyComment(ctx, people, post.ID, nil, cf)
			if err != nil {
				return nil, fmt.Errorf("comments on %q: %w", pf.Title, err)
			}
			sum.add(n)
		}
	}

	middleware.Logger.InfoContext(ctx, "Fixtures applied",
		slog.Int("users", sum.Users),
		slog.Int("posts", sum.Posts),
		slog.Int("comments", sum.Comments),
	)
	return sum, nil
}

func (s *Seeder) applyComment(ctx context.Context, people map[string]models.Principal, postID uint, parentID *uint, cf CommentFixture) (*Summary, error) {
	c, err := s.comments.CreateComment(ctx, people[cf.Author], service.CreateCommentInput{
		PostID:   postID,
		Content:  cf.Content,
		ParentID: parentID,
	})
	if err != nil {
		return nil, err
	}
	sum := &Summary{Comments: 1}
	for _, name := range cf.LikedBy {
		if _, err := s.comments.ToggleLike(ctx, people[name], c.ID); err != nil {
			return nil, err
		}
		sum.Likes++
	}
	for _, rf := range cf.Replies {
		n, err := s.applyComment(ctx, people, postID, &c.ID, rf)
		if err != nil {
			return nil, err
		}
		sum.add(n)
	}
	return sum, nil
}

// SeedRandom generates opts.NumUsers users and opts.NumPosts posts with
// randomized moderation outcomes, likes and two-level threads.
func (s *Seeder) SeedRandom(ctx context.Context, opts Options) (*Summary, error) {
	if opts.NumUsers < 1 {
		return nil, errors.New("seed: at least one user is required")
	}
	admin, err := s.moderator(ctx)
	if err != nil {
		return nil, err
	}
	f := NewFactory(opts.Seed)
	sum := &Summary{}

	users := make([]models.Principal, 0, opts.NumUsers)
	for i := 0; len(users) < opts.NumUsers; i++ {
		u := &models.User{Username: f.Username(i), Role: models.RoleUser, IsActive: true}
		if err := s.store.Users.Create(ctx, u); err != nil {
			if models.ErrorCode(err) == models.CodeConflict {
				continue
			}
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, models.PrincipalFromUser(u))
	}
	sum.Users = len(users)

	for i := 0; i < opts.NumPosts; i++ {
		author := users[f.Intn(len(users))]
		post, err := s.posts.CreatePost(ctx, author, f.PostInput())
		if err != nil {
			return nil, fmt.Errorf("create post: %w", err)
		}
		sum.Posts++

		roll := f.Intn(1000)
		switch {
		case roll < int(opts.PublishRatio*1000):
			if _, err := s.moderation.ApprovePost(ctx, admin, post.ID); err != nil {
				return nil, err
			}
			sum.Published++
		case roll < int((opts.PublishRatio+opts.RejectRatio)*1000):
			if _, err := s.moderation.RejectPost(ctx, admin, post.ID, f.RejectionReason()); err != nil {
				return nil, err
			}
			sum.Rejected++
			continue
		default:
			continue
		}

		n, err := s.engage(ctx, f, users, post.ID, opts)
		if err != nil {
			return nil, err
		}
		sum.add(n)

		if (i+1)%50 == 0 {
			middleware.Logger.InfoContext(ctx, "Seeding posts", slog.Int("done", i+1), slog.Int("total", opts.NumPosts))
		}
	}
	return sum, nil
}

// engage adds likes and comments to a published post.
func (s *Seeder) engage(ctx context.Context, f *Factory, users []models.Principal, postID uint, opts Options) (*Summary, error) {
	sum := &Summary{}

	likes := f.Intn(opts.MaxLikesPerPost + 1)
	if likes > len(users) {
		likes = len(users)
	}
	// distinct likers: toggling twice would undo the like
	start := f.Intn(len(users))
	for k := 0; k < likes; k++ {
		if _, err := s.posts.ToggleLike(ctx, users[(start+k)%len(users)], postID); err != nil {
			return nil, fmt.Errorf("like post %d: %w", postID, err)
		}
		sum.Likes++
	}

	var tops []uint
	for k := f.Intn(opts.MaxCommentsPerPost + 1); k > 0; k-- {
		in := service.CreateCommentInput{PostID: postID, Content: f.CommentContent()}
		if len(tops) > 0 && f.Chance(0.4) {
			parent := tops[f.Intn(len(tops))]
			in.ParentID = &parent
		}
		c, err := s.comments.CreateComment(ctx, users[f.Intn(len(users))], in)
		if err != nil {
			return nil, fmt.Errorf("comment on post %d: %w", postID, err)
		}
		if in.ParentID == nil {
			tops = append(tops, c.ID)
		}
		sum.Comments++
	}
	return sum, nil
}
