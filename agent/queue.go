package agent

import (
	"strings"
	"sync"

	"github.com/wardenhq/warden/model"
)

type Input struct {
	Content string
	Source  model.Source
}

type InputQueue struct {
	mu    sync.Mutex
	items []Input
}

func (q *InputQueue) Push(input Input) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, input)
}

func (q *InputQueue) Pop() (Input, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Input{}, false
	}
	input := q.items[0]
	q.items[0] = Input{}
	q.items = q.items[1:]
	return input, true
}

func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func formatInput(input Input) string {
	source := strings.TrimSpace(string(input.Source))
	content := strings.TrimSpace(input.Content)
	if source == "" {
		return content
	}
	if content == "" {
		return "[" + source + "]"
	}
	return "[" + source + "] " + content
}
