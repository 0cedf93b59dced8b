package fakeapi

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/fxsound/soundstudio/pkg/sound"
	"github.com/gosimple/slug"
	"github.com/lithammer/shortuuid/v4"
)

const createdAtLayout = "2006-01-02T15:04:05.000000"

type User struct {
	ID      string
	Key     string
	Created time.Time
	session.User
}

type storedSound struct {
	sound.Sound
	audio   []byte
	created time.Time
}

// Library holds users and their generated sounds in memory.
type Library struct {
	mu     sync.RWMutex
	users  map[string]*User
	sounds map[string]map[string]*storedSound
}

// UserKey identifies a user by the slug of their email.
func UserKey(email string) string {
	return slug.Make(strings.ToLower(email))
}

// SoundFilename sanitises a requested name into a stored .wav filename. It
// returns "" when nothing usable is left.
func SoundFilename(name string) string {
	s := slug.Make(strings.TrimSuffix(strings.TrimSpace(name), ".wav"))
	if s == "" {
		return ""
	}

	return s + ".wav"
}

// Upsert returns the user for u.Email, creating it on first login.
func (l *Library) Upsert(u session.User) *User {
	key := UserKey(u.Email)

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.users[key]
	if ok {
		existing.User = u
		return existing
	}

	created := &User{
		ID:      shortuuid.New(),
		Key:     key,
		Created: time.Now(),
		User:    u,
	}

	l.users[key] = created
	l.sounds[key] = map[string]*storedSound{}

	return created
}

func (l *Library) User(key string) (*User, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	u, ok := l.users[key]

	return u, ok
}

// Add stores a sound, replacing any earlier sound with the same filename.
func (l *Library) Add(userKey, filename, prompt string, audio []byte) sound.Sound {
	now := time.Now()

	s := &storedSound{
		Sound: sound.Sound{
			Filename:  filename,
			Prompt:    prompt,
			CreatedAt: now.UTC().Format(createdAtLayout),
		},
		audio:   audio,
		created: now,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sounds[userKey] == nil {
		l.sounds[userKey] = map[string]*storedSound{}
	}

	l.sounds[userKey][filename] = s

	return s.Sound
}

// Sounds lists a user's sounds, newest first.
func (l *Library) Sounds(userKey string) []sound.Sound {
	l.mu.RLock()
	stored := make([]*storedSound, 0, len(l.sounds[userKey]))

	for _, s := range l.sounds[userKey] {
		stored = append(stored, s)
	}
	l.mu.RUnlock()

	sort.Slice(stored, func(i, j int) bool {
		if stored[i].created.Equal(stored[j].created) {
			return stored[i].Filename < stored[j].Filename
		}

		return stored[i].created.After(stored[j].created)
	})

	out := make([]sound.Sound, len(stored))
	for i, s := range stored {
		out[i] = s.Sound
	}

	return out
}

func (l *Library) Audio(userKey, filename string) ([]byte, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.sounds[userKey][filename]
	if !ok {
		return nil, false
	}

	return s.audio, true
}

func NewLibrary() *Library {
	return &Library{
		users:  map[string]*User{},
		sounds: map[string]map[string]*storedSound{},
	}
}
