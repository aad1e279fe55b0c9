package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_AppendAndTurns(t *testing.T) {
	s := NewSession("s1")
	s.Append(NewTextContent(RoleSystem, "sys"), NewTextContent(RoleUser, "hi"))

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}

	turns[0].Role = "changed"
	if s.Turns()[0].Role != RoleSystem {
		t.Error("turns slice should be copied on read")
	}
}

func TestSession_Since(t *testing.T) {
	s := NewSession("s2")
	s.Append(NewTextContent(RoleUser, "a"))
	mark := s.Len()
	s.Append(NewTextContent(RoleAssistant, "b"), NewTextContent(RoleUser, "c"))

	since := s.Since(mark)
	assert.Len(t, since, 2)
	assert.Equal(t, "b", since[0].Text())
	assert.Empty(t, s.Since(10))
	assert.Len(t, s.Since(-1), 3)
}

func TestSession_AcquireRunSerializes(t *testing.T) {
	s := NewSession("s3")
	release := s.AcquireRun()

	acquired := make(chan struct{})
	go func() {
		r := s.AcquireRun()
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second run acquired the lock while the first held it")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second run never acquired the lock")
	}
}

func TestSession_ConcurrentAppend(t *testing.T) {
	s := NewSession("s4")
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(NewTextContent(RoleUser, "x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 25, s.Len())
}
