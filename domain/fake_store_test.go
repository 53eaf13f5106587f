package domain

import (
	"context"
	"errors"
	"sync"
)

// fakeStore is an in-memory stand-in for the table storage layer,
// implementing the storage interfaces the services consume.
type fakeStore struct {
	mu            sync.Mutex
	events        map[string]Event
	registrations map[string]Registration
	messages      []Message
	notifications []Notification
	nextTS        int64

	failInsertRegistration error
	failIncrement          error
	failDeleteEvent        error
	failDeleteRegs         map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:         map[string]Event{},
		registrations:  map[string]Registration{},
		failDeleteRegs: map[string]error{},
	}
}

func regMapKey(eventID, regID string) string { return eventID + "|" + regID }

func (f *fakeStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (f *fakeStore) InsertEvent(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.ID] = ev
	return nil
}

func (f *fakeStore) DeleteEvent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeleteEvent != nil {
		return f.failDeleteEvent
	}
	delete(f.events, id)
	return nil
}

func (f *fakeStore) ListEvents(ctx context.Context) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeStore) IncrementRegistrationCount(ctx context.Context, eventID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncrement != nil {
		return f.failIncrement
	}
	ev, ok := f.events[eventID]
	if !ok {
		return ErrNotFound
	}
	ev.RegistrationCount += delta
	if ev.RegistrationCount < 0 {
		ev.RegistrationCount = 0
	}
	f.events[eventID] = ev
	return nil
}

func (f *fakeStore) GetRegistration(ctx context.Context, eventID, userID string) (*Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registrations[regMapKey(eventID, RegistrationKey(eventID, userID))]
	if !ok {
		return nil, nil
	}
	return &reg, nil
}

func (f *fakeStore) InsertRegistration(ctx context.Context, reg Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertRegistration != nil {
		return f.failInsertRegistration
	}
	key := regMapKey(reg.EventID, reg.ID)
	if _, exists := f.registrations[key]; exists {
		return ErrAlreadyRegistered
	}
	f.registrations[key] = reg
	return nil
}

func (f *fakeStore) DeleteRegistration(ctx context.Context, eventID, regID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failDeleteRegs[regID]; ok {
		return err
	}
	delete(f.registrations, regMapKey(eventID, regID))
	return nil
}

func (f *fakeStore) CountEventRegistrations(ctx context.Context, eventID string) (int, error) {
	return f.registrationCount(eventID), nil
}

func (f *fakeStore) ListEventRegistrations(ctx context.Context, eventID string) ([]Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Registration
	for _, reg := range f.registrations {
		if reg.EventID == eventID {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextTS++
	msg.Timestamp = f.nextTS
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) ListMessages(ctx context.Context) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...), nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) ListNotifications(ctx context.Context) ([]Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.notifications...), nil
}

func (f *fakeStore) registrationCount(eventID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, reg := range f.registrations {
		if reg.EventID == eventID {
			n++
		}
	}
	return n
}

func (f *fakeStore) counterValue(eventID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[eventID].RegistrationCount
}

type fakeRepairQueue struct {
	mu   sync.Mutex
	cmds []RepairCommand
	fail error
}

func (f *fakeRepairQueue) EnqueueRepair(ctx context.Context, cmd RepairCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeRepairQueue) queued() []RepairCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RepairCommand(nil), f.cmds...)
}

type fakeDeduper struct {
	mu      sync.Mutex
	keys    map[string]bool
	failAdd error
}

func newFakeDeduper() *fakeDeduper { return &fakeDeduper{keys: map[string]bool{}} }

func (f *fakeDeduper) Add(ctx context.Context, owner, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd != nil {
		return false, f.failAdd
	}
	full := owner + ":" + key
	if f.keys[full] {
		return false, nil
	}
	f.keys[full] = true
	return true, nil
}

func (f *fakeDeduper) Remove(ctx context.Context, owner, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, owner+":"+key)
	return nil
}

func (f *fakeDeduper) has(owner, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[owner+":"+key]
}

var errStoreDown = errors.New("store down")
