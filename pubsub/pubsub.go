package pubsub

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/google/ldpush/logger"
	"github.com/google/ldpush/schema"
)

var log schema.Logger

func init() {
	log = logger.Log
}

const subscriberBuffer = 64

// Publisher reads raw session output line by line and fans each line out to
// its subscribers. One Publisher serves exactly one device session.
type Publisher struct {
	source string
	input  chan schema.MessageEvent
	done   chan struct{}
	subs   map[int]chan schema.MessageEvent
	next   int
	mut    sync.RWMutex
}

func New(source string) *Publisher {
	return &Publisher{
		source: source,
		input:  make(chan schema.MessageEvent, subscriberBuffer),
		done:   make(chan struct{}),
		subs:   make(map[int]chan schema.MessageEvent, 2),
	}
}

// Subscribe adds a listener. The returned id is used to unsubscribe.
func (p *Publisher) Subscribe(s chan schema.MessageEvent) (id int) {
	p.mut.Lock()
	defer p.mut.Unlock()
	id = p.next
	p.next++
	p.subs[id] = s
	log.Debugf("%s: subscriber %d attached", p.source, id)
	return id
}

func (p *Publisher) Unsubscribe(id int) {
	p.mut.Lock()
	defer p.mut.Unlock()
	delete(p.subs, id)
}

// Done is closed once every reader has hit EOF and fan-out has stopped,
// which is how an unexpected channel close becomes observable.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

// Attach starts reader goroutines over the session's stdout/stderr and the
// fan-out loop. It returns immediately. Attach must be called at most once;
// the publisher winds itself down when both readers reach EOF, which happens
// when the underlying session is closed.
func (p *Publisher) Attach(stdout, stderr io.Reader) {
	var readers sync.WaitGroup
	if stdout != nil {
		readers.Add(1)
		go p.read(stdout, schema.Stdout, &readers)
	}
	if stderr != nil {
		readers.Add(1)
		go p.read(stderr, schema.Stderr, &readers)
	}
	go func() {
		readers.Wait()
		close(p.input)
	}()
	go p.fanout()
}

func (p *Publisher) fanout() {
	defer close(p.done)
	for event := range p.input {
		p.mut.RLock()
		for _, s := range p.subs {
			// Drop rather than block when a subscriber is not keeping up.
			select {
			case s <- event:
			default:
			}
		}
		p.mut.RUnlock()
	}
}

func (p *Publisher) read(r io.Reader, dir schema.EventType, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Split(splitPromptAware)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.input <- schema.MessageEvent{
			Source:  p.source,
			Message: line,
			Dir:     dir,
			Time:    time.Now(),
		}
		log.Debugf("%s rx: %s", p.source, line)
	}
}

// splitPromptAware tokenizes on CR or LF but also flushes any trailing
// unterminated data as a token. Device prompts arrive without a line
// terminator, so waiting for one would make them invisible to Expect.
func splitPromptAware(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			return i + 1, data[:i], nil
		}
	}
	return len(data), data, nil
}
