package download

import (
	"errors"
	"fmt"
	"os"
)

type runFn func() error

// Action is a reversible step of a batch
type Action struct {
	name string
	do   runFn
	undo runFn
}

func NewAction(name string, do runFn) *Action {
	return &Action{
		name: name,
		do:   do,
	}
}

func (a *Action) WithUndo(undo runFn) *Action {
	a.undo = undo
	return a
}

// Batch keeps the actions done, to undo them in reverse order
type Batch struct {
	l   logger
	Log []*Action
}

func NewBatch() *Batch {
	return &Batch{
		l: nullLogger{},
	}
}

func (b *Batch) WithLogger(l logger) *Batch {
	if l != nil {
		b.l = l
	}
	return b
}

// Do runs the action. When it fails, the whole batch is rolled back.
func (b *Batch) Do(a *Action) error {
	b.Log = append(b.Log, a)
	if a.do == nil {
		return nil
	}
	err := a.do()
	if err != nil {
		b.l.Printf("[BATCH] %s: %s, rollback batch of actions", a.name, err)
		return errors.Join(err, b.Rollback())
	}
	b.l.Printf("[BATCH] %s done", a.name)
	return nil
}

// Rollback undoes all actions, the last one first. All undos are run, and their errors joined.
func (b *Batch) Rollback() error {
	var errs []error
	for len(b.Log) > 0 {
		a := b.Log[len(b.Log)-1]
		b.Log = b.Log[:len(b.Log)-1]
		if a.undo == nil {
			continue
		}
		if err := a.undo(); err != nil {
			b.l.Printf("[BATCH] %s can't be undone: %s", a.name, err)
			errs = append(errs, err)
			continue
		}
		b.l.Printf("[BATCH] %s undone", a.name)
	}
	return errors.Join(errs...)
}

// WriteFile creates the file with the content, and removes it when undone
func WriteFile(fileName string, content []byte) *Action {
	return NewAction(
		fmt.Sprintf("WriteFile %q", fileName),
		func() error {
			f, err := os.Create(fileName)
			if err != nil {
				return err
			}
			_, err = f.Write(content)
			if cErr := f.Close(); err == nil {
				err = cErr
			}
			return err
		}).WithUndo(removeFile(fileName))
}

// Produce stands for a file written by someone else. Undoing it removes the file if any.
func Produce(fileName string) *Action {
	return NewAction(fmt.Sprintf("Produce %q", fileName), nil).WithUndo(removeFile(fileName))
}

func removeFile(fileName string) runFn {
	return func() error {
		err := os.Remove(fileName)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
}
