package domain

// ActionType identifies a kind of deferred user action.
type ActionType string

const (
	ActionCreateNotebook ActionType = "create_notebook"
	ActionUpdateNotebook ActionType = "update_notebook"
	ActionDeleteNotebook ActionType = "delete_notebook"
	ActionAddMaterial    ActionType = "add_material"
	ActionDeleteMaterial ActionType = "delete_material"
	ActionUpdateProfile  ActionType = "update_profile"
)

// ActionTypes lists every known action type.
var ActionTypes = []ActionType{
	ActionCreateNotebook,
	ActionUpdateNotebook,
	ActionDeleteNotebook,
	ActionAddMaterial,
	ActionDeleteMaterial,
	ActionUpdateProfile,
}

// SyncStatus is the lifecycle state of a queued action.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncQueueItem is a durable record of one deferred operation.
type SyncQueueItem struct {
	ID           string         `json:"id"`
	Type         ActionType     `json:"type"`
	Payload      map[string]any `json:"payload"`
	CreatedAt    int64          `json:"createdAt"` // epoch ms
	RetryCount   int            `json:"retryCount"`
	Status       SyncStatus     `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// ItemUpdate is a partial update merged into a SyncQueueItem. Nil fields are
// left untouched.
type ItemUpdate struct {
	Status       *SyncStatus
	RetryCount   *int
	ErrorMessage *string
}

// Apply merges u into item.
func (u ItemUpdate) Apply(item *SyncQueueItem) {
	if u.Status != nil {
		item.Status = *u.Status
	}
	if u.RetryCount != nil {
		item.RetryCount = *u.RetryCount
	}
	if u.ErrorMessage != nil {
		item.ErrorMessage = *u.ErrorMessage
	}
}

// SyncQueue is the persisted container of queued actions.
type SyncQueue struct {
	Items      []SyncQueueItem `json:"items"`
	LastSyncAt *int64          `json:"lastSyncAt"` // epoch ms, nil until the first pass
}

// IndexOf returns the position of the item with id, or -1.
func (q *SyncQueue) IndexOf(id string) int {
	for i := range q.Items {
		if q.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// CountByStatus counts items in the given status.
func (q *SyncQueue) CountByStatus(status SyncStatus) int {
	n := 0
	for i := range q.Items {
		if q.Items[i].Status == status {
			n++
		}
	}
	return n
}
