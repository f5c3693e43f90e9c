package presence

import (
	"sort"
	"sync"

	"chatter/internal/models"
)

// TypingTracker keeps, per group, the set of users currently composing a
// message. Only transitions produce events: starting while already typing or
// stopping while not typing returns ok == false and nothing is broadcast.
type TypingTracker struct {
	mu     sync.Mutex
	groups map[string]map[string]string // groupId -> userId -> username
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		groups: make(map[string]map[string]string),
	}
}

// StartTyping marks who as typing in groupId.
func (t *TypingTracker) StartTyping(groupId string, who models.Identity) (models.TypingData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.groups[groupId]
	if !ok {
		users = make(map[string]string)
		t.groups[groupId] = users
	}
	if _, typing := users[who.UserId]; typing {
		return models.TypingData{}, false
	}
	users[who.UserId] = who.Username

	return models.TypingData{GroupId: groupId, UserId: who.UserId, Username: who.Username}, true
}

// StopTyping clears userId's typing state in groupId.
func (t *TypingTracker) StopTyping(groupId, userId string) (models.TypingStoppedData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.remove(groupId, userId) {
		return models.TypingStoppedData{}, false
	}
	return models.TypingStoppedData{GroupId: groupId, UserId: userId}, true
}

// OnDisconnect clears userId from every group and returns one stop event per
// group it was typing in, ordered by group id.
func (t *TypingTracker) OnDisconnect(userId string) []models.TypingStoppedData {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []models.TypingStoppedData
	for groupId := range t.groups {
		if t.remove(groupId, userId) {
			events = append(events, models.TypingStoppedData{GroupId: groupId, UserId: userId})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].GroupId < events[j].GroupId })
	return events
}

// ListTyping returns who is typing in groupId, ordered by user id.
func (t *TypingTracker) ListTyping(groupId string) []models.TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]models.TypingUser, 0, len(t.groups[groupId]))
	for userId, username := range t.groups[groupId] {
		users = append(users, models.TypingUser{UserId: userId, Username: username})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserId < users[j].UserId })
	return users
}

// remove must be called with mu held.
func (t *TypingTracker) remove(groupId, userId string) bool {
	users, ok := t.groups[groupId]
	if !ok {
		return false
	}
	if _, typing := users[userId]; !typing {
		return false
	}
	delete(users, userId)
	if len(users) == 0 {
		delete(t.groups, groupId)
	}
	return true
}
