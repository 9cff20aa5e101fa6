package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, lines <-chan string) []string {
	t.Helper()
	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return got
			}
			got = append(got, line)
		case <-timeout:
			t.Fatal("reader goroutine did not exit")
			return nil
		}
	}
}

func TestReadLines_Until_EOF(t *testing.T) {
	stop := make(chan struct{})
	defer close(stop)

	got := drain(t, readLines(strings.NewReader("hi\nthere\n"), stop))
	require.Equal(t, []string{"hi", "there"}, got)
}

func TestReadLines_Exits_When_Stopped(t *testing.T) {
	stop := make(chan struct{})
	lines := readLines(strings.NewReader("one\ntwo\nthree\n"), stop)

	require.Equal(t, "one", <-lines)
	close(stop)

	// the reader is blocked handing over "two"; stop releases it
	time.Sleep(20 * time.Millisecond)
	require.LessOrEqual(t, len(drain(t, lines)), 1)
}
