package profile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/didresolver"
	"github.com/threadring/ringhub/internal/profile"
	"github.com/threadring/ringhub/pkg/did"
)

func docWithService(endpoint string) *didresolver.Document {
	doc := &didresolver.Document{
		ID:    "did:web:alice.example",
		Name:  "Alice",
		Image: "https://alice.example/avatar.png",
	}
	if endpoint != "" {
		doc.Service = []didresolver.Service{{Type: "Profile", ServiceEndpoint: endpoint}}
	}
	return doc
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		didStr   string
		endpoint string
		want     profile.Profile
		wantErr  error
	}{
		{
			name:     "https profile with handle",
			didStr:   "did:web:alice.example",
			endpoint: "https://alice.example/@alice",
			want: profile.Profile{
				ProfileURL:     "https://alice.example/@alice",
				Name:           "Alice",
				AvatarURL:      "https://alice.example/avatar.png",
				InstanceDomain: "alice.example",
				Handle:         "alice",
			},
		},
		{
			name:     "nested path handle",
			didStr:   "did:web:example.com:users:bob",
			endpoint: "https://example.com/users/bob",
			want: profile.Profile{
				ProfileURL:     "https://example.com/users/bob",
				Name:           "Alice",
				AvatarURL:      "https://alice.example/avatar.png",
				InstanceDomain: "example.com",
				Handle:         "bob",
			},
		},
		{
			name:     "localhost http allowed",
			didStr:   "did:web:localhost%3A3000",
			endpoint: "http://localhost:3000/@dev",
			want: profile.Profile{
				ProfileURL:     "http://localhost:3000/@dev",
				Name:           "Alice",
				AvatarURL:      "https://alice.example/avatar.png",
				InstanceDomain: "localhost",
				Handle:         "dev",
			},
		},
		{
			name:     "plain http rejected",
			didStr:   "did:web:alice.example",
			endpoint: "http://alice.example/@alice",
			wantErr:  profile.ErrInsecureProfileURL,
		},
		{
			name:    "missing profile service",
			didStr:  "did:web:alice.example",
			wantErr: profile.ErrNoProfileURL,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			d := did.MustParse(tc.didStr)
			got, err := profile.Extract(d, docWithService(tc.endpoint))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("got error %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if *got != tc.want {
				t.Errorf("Extract = %+v, want %+v", *got, tc.want)
			}
		})
	}
}

type stubSource struct {
	doc *didresolver.Document
	err error
}

func (s *stubSource) Refresh(_ context.Context, _ string) (*didresolver.Document, error) {
	return s.doc, s.err
}

type stubStore struct {
	updates chan string
	err     error
}

func (s *stubStore) UpdateActorProfile(_ context.Context, didStr string, _ *profile.Profile) error {
	s.updates <- didStr
	return s.err
}

func TestRefresherUpdatesStore(t *testing.T) {
	source := &stubSource{doc: docWithService("https://alice.example/@alice")}
	store := &stubStore{updates: make(chan string, 1)}

	r := profile.NewRefresher(source, store, zap.NewNop())
	done := make(chan struct{})
	go r.Start(done)
	defer close(done)

	if !r.Enqueue("did:web:alice.example") {
		t.Fatal("Enqueue returned false")
	}

	select {
	case got := <-store.updates:
		if got != "did:web:alice.example" {
			t.Errorf("updated %q, want did:web:alice.example", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("store was never updated")
	}
}

func TestRefresherSwallowsFailures(t *testing.T) {
	source := &stubSource{err: errors.New("fetch failed")}
	store := &stubStore{updates: make(chan string, 1)}

	r := profile.NewRefresher(source, store, zap.NewNop())
	done := make(chan struct{})
	go r.Start(done)
	defer close(done)

	r.Enqueue("did:web:down.example")

	select {
	case got := <-store.updates:
		t.Fatalf("store updated with %q despite refresh failure", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	// No worker running, so the queue only drains on Start.
	r := profile.NewRefresher(&stubSource{}, &stubStore{}, zap.NewNop())

	full := false
	for i := 0; i < 1000; i++ {
		if !r.Enqueue(fmt.Sprintf("did:web:host%d.example", i)) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("queue never reported full")
	}
}
