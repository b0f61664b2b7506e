package models

// BlogPost is an owner-editable post. Mutations are guarded by a per-post
// shared secret stored as a sha256 hex digest, never in the clear.
type BlogPost struct {
	ID           uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Title        string `gorm:"column:title;type:text;not null"`
	Content      string `gorm:"column:content;type:text;not null"`
	TagsJSON     string `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	PasswordHash string `gorm:"column:password_hash;type:text;not null"`
	CreatedAt    int64  `gorm:"column:created_at;not null;index:idx_blog_posts_created"`
	UpdatedAt    int64  `gorm:"column:updated_at;not null"`
}

func (BlogPost) TableName() string { return "blog_posts" }
