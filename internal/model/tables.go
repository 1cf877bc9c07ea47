package model

import "fmt"

const (
	DraftsTable      = "ConsoleDrafts"
	DraftsAdminIndex = "AdminIndex"
)

func DraftPK(adminID, sessionID string) string {
	return fmt.Sprintf("%s#%s", adminID, sessionID)
}

// DraftItem is an unsent admin reply, keyed per admin and session.
type DraftItem struct {
	PK        string `dynamodbav:"pk"`
	AdminID   string `dynamodbav:"adminId"`
	SessionID string `dynamodbav:"sessionId"`
	Body      string `dynamodbav:"body"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}
