package session

import (
	"os"
	"sync"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T, engine Engine) *Registry {
	t.Helper()
	scratch := t.TempDir()
	factory := func(id string, notify Notifier) (*Session, error) {
		return New(id, scratch, engine, stubNormalizer{}, stubNormalizer{},
			notify, testLogger(), testMetrics, testConfig())
	}
	r := NewRegistry(factory, time.Minute, testLogger(), testMetrics)
	t.Cleanup(func() { r.Stop() })
	return r
}

func TestRegistryEnsureIdempotent(t *testing.T) {
	registry := newTestRegistry(t, &stubEngine{})
	collector := &msgCollector{}

	first, err := registry.Ensure("abc", collector.notify)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	second, err := registry.Ensure("abc", collector.notify)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	if first != second {
		t.Error("Ensure should return the same session for the same id")
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", registry.Count())
	}
}

func TestRegistryConcurrentEnsure(t *testing.T) {
	registry := newTestRegistry(t, &stubEngine{})
	collector := &msgCollector{}

	var wg sync.WaitGroup
	sessions := make([]*Session, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := registry.Ensure("shared", collector.notify)
			if err != nil {
				t.Errorf("Ensure failed: %v", err)
				return
			}
			sessions[i] = sess
		}(i)
	}
	wg.Wait()

	for i := 1; i < 10; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("Concurrent Ensure calls observed different sessions")
		}
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 session, got %d", registry.Count())
	}
}

func TestRegistryRemove(t *testing.T) {
	registry := newTestRegistry(t, &stubEngine{})
	collector := &msgCollector{}

	sess, err := registry.Ensure("abc", collector.notify)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	dir := sess.store.Dir()

	if !registry.Remove("abc") {
		t.Fatal("Remove should report true for an existing session")
	}
	if registry.Count() != 0 {
		t.Errorf("Expected 0 sessions after remove, got %d", registry.Count())
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Expected scratch directory removed with the session")
	}

	if registry.Remove("abc") {
		t.Error("Remove should report false for an unknown session")
	}
}

func TestRegistryRapidReconnect(t *testing.T) {
	registry := newTestRegistry(t, &stubEngine{})
	collector := &msgCollector{}

	first, err := registry.Ensure("abc", collector.notify)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	registry.Remove("abc")

	second, err := registry.Ensure("abc", collector.notify)
	if err != nil {
		t.Fatalf("Ensure after remove failed: %v", err)
	}

	if first == second {
		t.Error("Reconnect after remove should create a fresh session")
	}
	if registry.Count() != 1 {
		t.Errorf("Expected 1 session after reconnect, got %d", registry.Count())
	}
}

func TestRegistryGetAllSessions(t *testing.T) {
	registry := newTestRegistry(t, &stubEngine{})
	collector := &msgCollector{}

	for _, id := range []string{"a", "b", "c"} {
		if _, err := registry.Ensure(id, collector.notify); err != nil {
			t.Fatalf("Ensure %s failed: %v", id, err)
		}
	}

	all := registry.GetAllSessions()
	if len(all) != 3 {
		t.Fatalf("Expected 3 sessions, got %d", len(all))
	}

	if _, ok := registry.Get("b"); !ok {
		t.Error("Expected to find session 'b'")
	}
	if _, ok := registry.Get("missing"); ok {
		t.Error("Did not expect to find session 'missing'")
	}
}

func TestRegistryStopTearsDownSessions(t *testing.T) {
	engine := &stubEngine{}
	scratch := t.TempDir()
	factory := func(id string, notify Notifier) (*Session, error) {
		return New(id, scratch, engine, stubNormalizer{}, stubNormalizer{},
			notify, testLogger(), testMetrics, testConfig())
	}
	registry := NewRegistry(factory, time.Minute, testLogger(), testMetrics)

	collector := &msgCollector{}
	sess, err := registry.Ensure("abc", collector.notify)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	dir := sess.store.Dir()

	registry.Stop()

	if registry.Count() != 0 {
		t.Errorf("Expected 0 sessions after stop, got %d", registry.Count())
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Expected scratch directory removed on stop")
	}
}
