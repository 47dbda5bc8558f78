package export

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"

	"github.com/dvloznov/align/internal/domain"
)

// SharedAssignee is the Notion label for tasks anyone can pick up.
const SharedAssignee = "Nós dois"

// NotionService defines the interface for interacting with Notion API.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// UpdatePage updates an existing Notion page with the given properties.
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// NotionClient implements NotionService with the Notion SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a new NotionClient with the provided API token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage implements NotionService.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

// UpdatePage implements NotionService.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageUpdateRequest{
		Properties: properties,
	}

	page, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}
	return page, nil
}

// QueryDatabase implements NotionService.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), filter)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// NotionSink mirrors the shared task list into a Notion database keyed by
// the "Task ID" property.
type NotionSink struct {
	client     NotionService
	databaseID string
	log        zerolog.Logger
}

// NewNotionSink creates a NotionSink.
func NewNotionSink(client NotionService, databaseID string, log zerolog.Logger) *NotionSink {
	return &NotionSink{client: client, databaseID: databaseID, log: log}
}

// Name implements Sink.
func (s *NotionSink) Name() string { return "notion" }

// Export implements Sink. Existing pages are updated, missing ones created.
// A failure on one task is logged and the rest still sync.
func (s *NotionSink) Export(ctx context.Context, snap Snapshot) error {
	pages, err := queryAllNotionPages(ctx, s.client, s.databaseID)
	if err != nil {
		return fmt.Errorf("notion export: %w", err)
	}

	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		if id := extractTaskID(page); id != "" {
			existing[id] = string(page.ID)
		}
	}

	var created, updated, failed int
	for _, task := range snap.State.Tasks {
		props := TaskToNotionProperties(task, snap.State.Users)

		if pageID, ok := existing[task.ID]; ok {
			if _, err := s.client.UpdatePage(ctx, pageID, props); err != nil {
				s.log.Warn().Err(err).Str("task_id", task.ID).Str("page_id", pageID).Msg("Failed to update Notion page")
				failed++
				continue
			}
			updated++
			continue
		}

		page, err := s.client.CreatePage(ctx, s.databaseID, props)
		if err != nil {
			s.log.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to create Notion page")
			failed++
			continue
		}
		s.log.Debug().Str("task_id", task.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		created++
	}

	s.log.Info().
		Int("created", created).
		Int("updated", updated).
		Int("failed", failed).
		Int("total", len(snap.State.Tasks)).
		Msg("Task sync to Notion completed")

	if failed > 0 {
		return fmt.Errorf("notion export: %d of %d tasks failed", failed, len(snap.State.Tasks))
	}
	return nil
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: content},
		},
	}
}

// TaskToNotionProperties converts a task to Notion page properties.
func TaskToNotionProperties(task domain.Task, users []domain.User) notionapi.Properties {
	assignee := SharedAssignee
	if task.AssignedToUserID != nil {
		assignee = *task.AssignedToUserID
		for _, u := range users {
			if u.ID == *task.AssignedToUserID {
				assignee = u.Name
				break
			}
		}
	}

	props := notionapi.Properties{
		"Title": notionapi.TitleProperty{
			Title: richText(task.Title),
		},
		"Task ID": notionapi.RichTextProperty{
			RichText: richText(task.ID),
		},
		"Assignee": notionapi.SelectProperty{
			Select: notionapi.Option{Name: assignee},
		},
		"Done": notionapi.CheckboxProperty{
			Checkbox: task.Completed,
		},
	}

	if !task.DueDate.IsZero() {
		d := notionapi.Date(time.Date(task.DueDate.Year, task.DueDate.Month, task.DueDate.Day, 0, 0, 0, 0, time.UTC))
		props["Due Date"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	return props
}

// queryAllNotionPages queries all pages from a Notion database, following
// pagination cursors.
func queryAllNotionPages(ctx context.Context, client NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// extractTaskID reads the "Task ID" rich text property of a page. It returns
// "" when the property is missing or empty.
func extractTaskID(page notionapi.Page) string {
	if prop, ok := page.Properties["Task ID"]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}
