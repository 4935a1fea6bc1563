// Package search finds published courses by free text. Elastic is used when a
// cluster is configured; DB answers from the course table otherwise.
package search

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/lms/services/course/internal/models"
)

type Result struct {
	Total int64
	Items []models.Course
}

type Index interface {
	// Index stores a published course. Unpublished courses are removed instead.
	Index(ctx context.Context, c models.Course) error
	Remove(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, q string, offset, limit int) (Result, error)
}

type courseSearcher interface {
	SearchCourses(ctx context.Context, q string, offset, limit int) ([]models.Course, int64, error)
}

// DB searches the database directly and keeps no index of its own.
type DB struct {
	Repo courseSearcher
}

func (DB) Index(context.Context, models.Course) error { return nil }

func (DB) Remove(context.Context, uuid.UUID) error { return nil }

func (d DB) Search(ctx context.Context, q string, offset, limit int) (Result, error) {
	items, total, err := d.Repo.SearchCourses(ctx, q, offset, limit)
	if err != nil {
		return Result{}, err
	}
	return Result{Total: total, Items: items}, nil
}
