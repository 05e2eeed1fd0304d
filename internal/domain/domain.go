package domain

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role" enum:"admin,user"`
	Approved     bool   `json:"approved"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Department struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	Status           string  `json:"status" enum:"open,in_progress,completed,archived"`
	Priority         string  `json:"priority,omitempty"`
	Category         string  `json:"category" enum:"task,plan"`
	SourceProposalID *string `json:"source_proposal_id,omitempty"`
	CreatedBy        string  `json:"created_by"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type Subtask struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	Title      string  `json:"title"`
	AssigneeID *string `json:"assignee_id,omitempty"`
	Status     string  `json:"status" enum:"pending,in_progress,completed"`
	DueDate    *string `json:"due_date,omitempty" format:"date-time"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

type Assignment struct {
	ID             string  `json:"id"`
	TaskID         string  `json:"task_id"`
	UserID         string  `json:"user_id"`
	AssignedBy     string  `json:"assigned_by"`
	IsPrimary      bool    `json:"is_primary"`
	AssignmentType string  `json:"assignment_type" enum:"individual,department,mixed"`
	Status         string  `json:"status" enum:"pending,accepted,in_progress,completed,declined"`
	Priority       string  `json:"priority,omitempty"`
	Deadline       string  `json:"deadline" format:"date-time"`
	Notes          string  `json:"notes,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
}

type Completion struct {
	ID                 string  `json:"id"`
	AssignmentID       string  `json:"assignment_id"`
	SubtaskID          *string `json:"subtask_id,omitempty"`
	UserID             string  `json:"user_id"`
	ProgressPercentage int     `json:"progress_percentage" minimum:"0" maximum:"100"`
	IsFullyCompleted   bool    `json:"is_fully_completed"`
	WorkDescription    string  `json:"work_description"`
	Challenges         string  `json:"challenges,omitempty"`
	NextSteps          string  `json:"next_steps,omitempty"`
	Status             string  `json:"status" enum:"draft,submitted,under_review,approved,revision_requested,rejected"`
	ReviewerID         *string `json:"reviewer_id,omitempty"`
	ReviewComment      string  `json:"review_comment,omitempty"`
	SubmittedAt        *string `json:"submitted_at,omitempty" format:"date-time"`
	ReviewedAt         *string `json:"reviewed_at,omitempty" format:"date-time"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
	UpdatedAt          string  `json:"updated_at" format:"date-time"`
}

type CompletionFile struct {
	ID           string `json:"id"`
	CompletionID string `json:"completion_id"`
	FileName     string `json:"file_name"`
	FilePath     string `json:"file_path"`
	FileType     string `json:"file_type"`
	FileSize     int64  `json:"file_size"`
	Category     string `json:"category" enum:"screenshot,report,video,other"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Proposal struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Title        string  `json:"title"`
	Objective    string  `json:"objective"`
	StartDate    string  `json:"start_date" format:"date"`
	EndDate      string  `json:"end_date" format:"date"`
	Budget       int64   `json:"budget"`
	Status       string  `json:"status" enum:"draft,submitted,under_review,approved,rejected,changes_requested"`
	LinkedPlanID *string `json:"linked_plan_id,omitempty"`
	SubmittedAt  *string `json:"submitted_at,omitempty" format:"date-time"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type ProposalFile struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	FileName   string `json:"file_name"`
	FilePath   string `json:"file_path"`
	FileType   string `json:"file_type"`
	FileSize   int64  `json:"file_size"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ProposalComment struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	AuthorID   string `json:"author_id"`
	Kind       string `json:"kind" enum:"comment,approval,rejection,changes_requested"`
	Body       string `json:"body"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Body       string `json:"body,omitempty"`
	EntityKind string `json:"entity_kind,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ChatChannel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
