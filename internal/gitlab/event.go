package gitlab

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MergeRequestEvent is the payload GitLab sends for "Merge Request Hook" deliveries.
// Only State, SourceBranch, Description, IID and Project.ID drive decisions; the rest
// is decoded so replays and logs keep the full shape. Every field is optional on the
// wire because different event variants omit different parts.
type MergeRequestEvent struct {
	ObjectKind       string           `json:"object_kind"`
	EventType        string           `json:"event_type"`
	User             User             `json:"user"`
	Project          Project          `json:"project"`
	Repository       Repository       `json:"repository"`
	ObjectAttributes ObjectAttributes `json:"object_attributes"`
	Labels           []Label          `json:"labels"`
	Changes          Changes          `json:"changes"`
	Assignees        []User           `json:"assignees,omitempty"`
	Reviewers        []User           `json:"reviewers,omitempty"`
}

// StateOpened is the only merge request state the enforcer acts on.
const StateOpened = "opened"

type User struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Username  string  `json:"username"`
	AvatarURL string  `json:"avatar_url"`
	Email     *string `json:"email,omitempty"`
}

// Project describes the project a merge request belongs to.
// ID is a pointer because some deliveries omit it; closing requires it.
type Project struct {
	ID                *int64  `json:"id,omitempty"`
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	WebURL            string  `json:"web_url"`
	AvatarURL         *string `json:"avatar_url,omitempty"`
	GitSSHURL         string  `json:"git_ssh_url"`
	GitHTTPURL        string  `json:"git_http_url"`
	Namespace         string  `json:"namespace"`
	VisibilityLevel   int     `json:"visibility_level"`
	PathWithNamespace string  `json:"path_with_namespace"`
	DefaultBranch     string  `json:"default_branch"`
	CIConfigPath      *string `json:"ci_config_path,omitempty"`
	Homepage          string  `json:"homepage"`
	URL               string  `json:"url"`
	SSHURL            string  `json:"ssh_url"`
	HTTPURL           string  `json:"http_url"`
}

type Repository struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Homepage    string `json:"homepage"`
}

type ObjectAttributes struct {
	ID                          int64      `json:"id"`
	IID                         int64      `json:"iid"`
	TargetBranch                string     `json:"target_branch"`
	SourceBranch                string     `json:"source_branch"`
	SourceProjectID             int64      `json:"source_project_id"`
	AuthorID                    int64      `json:"author_id"`
	AssigneeIDs                 []int64    `json:"assignee_ids"`
	AssigneeID                  *int64     `json:"assignee_id,omitempty"`
	ReviewerIDs                 []int64    `json:"reviewer_ids"`
	Title                       string     `json:"title"`
	CreatedAt                   string     `json:"created_at"`
	UpdatedAt                   *string    `json:"updated_at,omitempty"`
	LastEditedAt                *string    `json:"last_edited_at,omitempty"`
	LastEditedByID              *int64     `json:"last_edited_by_id,omitempty"`
	MilestoneID                 *int64     `json:"milestone_id,omitempty"`
	StateID                     int        `json:"state_id"`
	State                       string     `json:"state"`
	BlockingDiscussionsResolved bool       `json:"blocking_discussions_resolved"`
	WorkInProgress              bool       `json:"work_in_progress"`
	FirstContribution           bool       `json:"first_contribution"`
	MergeStatus                 string     `json:"merge_status"`
	TargetProjectID             int64      `json:"target_project_id"`
	Description                 string     `json:"description"`
	TotalTimeSpent              int64      `json:"total_time_spent"`
	TimeChange                  int64      `json:"time_change"`
	HumanTotalTimeSpent         *string    `json:"human_total_time_spent,omitempty"`
	HumanTimeChange             *string    `json:"human_time_change,omitempty"`
	HumanTimeEstimate           *string    `json:"human_time_estimate,omitempty"`
	UpdatedByID                 *int64     `json:"updated_by_id,omitempty"`
	URL                         string     `json:"url"`
	Source                      *Project   `json:"source,omitempty"`
	Target                      *Project   `json:"target,omitempty"`
	LastCommit                  LastCommit `json:"last_commit"`
	Labels                      []Label    `json:"labels"`
	Action                      *string    `json:"action,omitempty"`
	DetailedMergeStatus         string     `json:"detailed_merge_status"`
}

type LastCommit struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Author    struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
}

type Label struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Color       string  `json:"color"`
	ProjectID   *int64  `json:"project_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   *string `json:"updated_at,omitempty"`
	Template    bool    `json:"template"`
	Description *string `json:"description,omitempty"`
	Type        string  `json:"type"`
	GroupID     *int64  `json:"group_id,omitempty"`
}

// Change is a previous/current pair from the "changes" section.
type Change[T any] struct {
	Previous *T `json:"previous"`
	Current  T  `json:"current"`
}

type Changes struct {
	UpdatedByID    *Change[int64]   `json:"updated_by_id,omitempty"`
	UpdatedAt      *Change[string]  `json:"updated_at,omitempty"`
	Labels         *Change[[]Label] `json:"labels,omitempty"`
	LastEditedAt   *Change[*string] `json:"last_edited_at,omitempty"`
	LastEditedByID *Change[int64]   `json:"last_edited_by_id,omitempty"`
}

// ErrMissingField is wrapped by DecodeMergeRequestEvent when a field the
// enforcer decides on is absent.
var ErrMissingField = errors.New("missing required field")

// requiredAttributes records which decision fields were present on the wire.
// description may be null but must be present; the others must be non-null.
type requiredAttributes struct {
	ObjectAttributes *struct {
		IID          json.RawMessage `json:"iid"`
		State        json.RawMessage `json:"state"`
		SourceBranch json.RawMessage `json:"source_branch"`
		Description  json.RawMessage `json:"description"`
	} `json:"object_attributes"`
}

func (r requiredAttributes) check() error {
	attrs := r.ObjectAttributes
	if attrs == nil {
		return fmt.Errorf("%w: object_attributes", ErrMissingField)
	}
	for _, f := range []struct {
		name      string
		raw       json.RawMessage
		allowNull bool
	}{
		{"object_attributes.iid", attrs.IID, false},
		{"object_attributes.state", attrs.State, false},
		{"object_attributes.source_branch", attrs.SourceBranch, false},
		{"object_attributes.description", attrs.Description, true},
	} {
		if len(f.raw) == 0 || (!f.allowNull && string(f.raw) == "null") {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	return nil
}

// DecodeMergeRequestEvent reads exactly one merge request event. Unknown fields are
// ignored; trailing data and a missing iid, state, source_branch or description are
// errors. project.id stays optional because only closing needs it.
func DecodeMergeRequestEvent(r io.Reader) (*MergeRequestEvent, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode merge request event: %w", err)
	}

	var ev MergeRequestEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode merge request event: %w", err)
	}
	var req requiredAttributes
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode merge request event: %w", err)
	}
	if err := req.check(); err != nil {
		return nil, fmt.Errorf("decode merge request event: %w", err)
	}
	return &ev, nil
}
