package dispatcher

import (
	"sync"

	"github.com/simulot/bilidl/pkg/models"
)

type Subscriber interface {
	// Subscribe calls the given function for each progress report.
	// The returned function cancels the subscription.
	Subscribe(func(models.Progress)) (cancel func())
}

type Publisher interface {
	// Publish sends the report to all current subscribers
	Publish(models.Progress)
}

// Dispatcher fans progress reports out to its subscribers.
// Each subscriber gets the reports in publication order.
type Dispatcher struct {
	sync.RWMutex
	subscribers []*subscriber
}

type subscriber struct {
	c    chan models.Progress
	done chan struct{}
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Publish(p models.Progress) {
	d.RLock()
	defer d.RUnlock()
	for _, s := range d.subscribers {
		s.c <- p
	}
}

// Subscribe calls onProgress for each report until cancel is called.
// Cancel returns once the reports already received are handled, it must not
// be called from onProgress.
func (d *Dispatcher) Subscribe(onProgress func(models.Progress)) (cancel func()) {
	s := &subscriber{
		c:    make(chan models.Progress, 16),
		done: make(chan struct{}),
	}
	d.Lock()
	d.subscribers = append(d.subscribers, s)
	d.Unlock()

	go func() {
		defer close(s.done)
		for p := range s.c {
			onProgress(p)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.unsubscribe(s)
			<-s.done
		})
	}
}

func (d *Dispatcher) unsubscribe(s *subscriber) {
	d.Lock()
	defer d.Unlock()
	for i := range d.subscribers {
		if d.subscribers[i] == s {
			close(s.c)
			last := len(d.subscribers) - 1
			d.subscribers[i] = d.subscribers[last]
			d.subscribers[last] = nil
			d.subscribers = d.subscribers[:last]
			return
		}
	}
}
