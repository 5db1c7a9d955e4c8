package api

import (
	"context"
	"net/url"

	"github.com/pavelanni/worksheetgen/internal/model"
)

// ListBoards returns the curriculum boards.
func (c *Client) ListBoards(ctx context.Context, token string) ([]model.CatalogItem, error) {
	var items []model.CatalogItem
	if err := c.getJSON(ctx, token, "list boards", "/metadata/v1/board", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListGrades returns the grades of a board.
func (c *Client) ListGrades(ctx context.Context, token, boardID string) ([]model.CatalogItem, error) {
	var items []model.CatalogItem
	path := "/metadata/v1/board/" + url.PathEscape(boardID) + "/grades"
	if err := c.getJSON(ctx, token, "list grades", path, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListSubjects returns the subjects of a board's grade.
func (c *Client) ListSubjects(ctx context.Context, token, boardID, gradeID string) ([]model.CatalogItem, error) {
	var items []model.CatalogItem
	path := "/metadata/v1/board/" + url.PathEscape(boardID) + "/grades/" + url.PathEscape(gradeID) + "/subjects"
	if err := c.getJSON(ctx, token, "list subjects", path, &items); err != nil {
		return nil, err
	}
	return items, nil
}
