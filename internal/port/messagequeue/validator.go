package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case subject == SubjectTaskStatus:
		var p TaskStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || p.Status == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("task_id and status are required"))
		}
	case strings.HasPrefix(subject, SubjectCompletions+"."):
		var p CompletionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TaskID == "" || p.AgentName == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("task_id and agent_name are required"))
		}
	}
	return nil
}

// DLQSubject returns the dead-letter subject for subject. Dead letters live
// outside the original subject tree so wildcard consumers never see them.
func DLQSubject(subject string) string {
	return SubjectDLQ + "." + strings.TrimPrefix(subject, SubjectRoot+".")
}
