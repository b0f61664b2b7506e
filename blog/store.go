// Package blog stores owner-editable posts. There is no account system;
// each post carries its own shared secret, set at creation and required for
// later edits and deletion.
package blog

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/donghwi-dev/portfolio-agent/db/models"
)

var (
	ErrNotFound         = errors.New("blog post not found")
	ErrPasswordMismatch = errors.New("blog post password mismatch")
	ErrPasswordRequired = errors.New("blog post password required")
)

type Post struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	DB *gorm.DB

	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// List returns all posts, newest first.
func (s *Store) List(ctx context.Context) ([]Post, error) {
	if s == nil || s.DB == nil {
		return nil, nil
	}
	var rows []models.BlogPost
	if err := s.DB.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	out := make([]Post, 0, len(rows))
	for _, r := range rows {
		out = append(out, modelToPost(r))
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id uint) (Post, error) {
	if s == nil || s.DB == nil {
		return Post{}, ErrNotFound
	}
	var row models.BlogPost
	if err := s.DB.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Post{}, ErrNotFound
		}
		return Post{}, fmt.Errorf("get post: %w", err)
	}
	return modelToPost(row), nil
}

// Create stores a new post. The password becomes the post's edit secret and
// must be non-empty.
func (s *Store) Create(ctx context.Context, title, content string, tags []string, password string) (Post, error) {
	if s == nil || s.DB == nil {
		return Post{}, fmt.Errorf("blog store not configured")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Post{}, fmt.Errorf("empty post title")
	}
	if strings.TrimSpace(password) == "" {
		return Post{}, ErrPasswordRequired
	}

	now := s.clock().Unix()
	row := models.BlogPost{
		Title:        title,
		Content:      content,
		TagsJSON:     encodeTags(tags),
		PasswordHash: hashPassword(password),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	return modelToPost(row), nil
}

// Update rewrites a post after verifying its password.
func (s *Store) Update(ctx context.Context, id uint, title, content string, tags []string, password string) (Post, error) {
	if s == nil || s.DB == nil {
		return Post{}, fmt.Errorf("blog store not configured")
	}
	row, err := s.verified(ctx, id, password)
	if err != nil {
		return Post{}, err
	}

	title = strings.TrimSpace(title)
	if title != "" {
		row.Title = title
	}
	row.Content = content
	if tags != nil {
		row.TagsJSON = encodeTags(tags)
	}
	row.UpdatedAt = s.clock().Unix()
	if err := s.DB.WithContext(ctx).Save(&row).Error; err != nil {
		return Post{}, fmt.Errorf("update post: %w", err)
	}
	return modelToPost(row), nil
}

// Delete removes a post after verifying its password.
func (s *Store) Delete(ctx context.Context, id uint, password string) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("blog store not configured")
	}
	row, err := s.verified(ctx, id, password)
	if err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Delete(&models.BlogPost{}, row.ID).Error; err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

func (s *Store) verified(ctx context.Context, id uint, password string) (models.BlogPost, error) {
	var row models.BlogPost
	if err := s.DB.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return row, ErrNotFound
		}
		return row, fmt.Errorf("get post: %w", err)
	}
	if strings.TrimSpace(password) == "" {
		return row, ErrPasswordRequired
	}
	hash := hashPassword(password)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(row.PasswordHash)) != 1 {
		return row, ErrPasswordMismatch
	}
	return row, nil
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func encodeTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			clean = append(clean, t)
		}
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

func modelToPost(row models.BlogPost) Post {
	return Post{
		ID:        row.ID,
		Title:     row.Title,
		Content:   row.Content,
		Tags:      decodeTags(row.TagsJSON),
		CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
		UpdatedAt: time.Unix(row.UpdatedAt, 0).UTC(),
	}
}
