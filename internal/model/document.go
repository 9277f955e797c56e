/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

// Package model is an in-memory building document used as the demo host.
// Changes are only accepted inside an open transaction, which is what the
// session scope maps onto.
package model

import (
	"sort"
	"sync"

	"github.com/codeallergy/value-rmi/rmi"
	"github.com/codeallergy/value-rmi/rmiserver"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNoTransaction = errors.New("no open transaction")
var ErrTransactionOpen = errors.New("transaction already open")
var ErrNotFound = errors.New("element not found")

type Kind int

const (
	LevelKind Kind = iota
	WallKind
	FloorKind
	ColumnKind
	FamilyKind
)

type Element struct {
	ID        rmi.Ref
	Kind      Kind
	Name      string
	Level     rmi.Ref
	Top       rmi.Ref
	Points    []rmi.XYZ
	Elevation float64
	Width     float64
}

type Document struct {
	mu       sync.Mutex
	elements map[rmi.Ref]*Element
	nextID   int32
	revision int64
	tx       *Transaction
	log      *zap.Logger
}

func NewDocument(log *zap.Logger) *Document {
	if log == nil {
		log = zap.NewNop()
	}
	return &Document{
		elements: make(map[rmi.Ref]*Element),
		nextID:   1,
		log:      log,
	}
}

func (d *Document) Revision() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.revision
}

func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.elements)
}

func (d *Document) Element(id rmi.Ref) (Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.elements[id]
	if !ok {
		return Element{}, false
	}
	return *e, true
}

// Levels returns the levels ordered by elevation.
func (d *Document) Levels() []Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var levels []Element
	for _, e := range d.elements {
		if e.Kind == LevelKind {
			levels = append(levels, *e)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Elevation < levels[j].Elevation })
	return levels
}

// mutate runs fn under the document lock inside the open transaction.
func (d *Document) mutate(fn func(tx *Transaction) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return ErrNoTransaction
	}
	d.tx.changes++
	return fn(d.tx)
}

func (d *Document) read(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// add must be called with the lock held.
func (d *Document) add(e *Element) rmi.Ref {
	e.ID = rmi.Ref(d.nextID)
	d.nextID++
	d.elements[e.ID] = e
	return e.ID
}

// lookup must be called with the lock held.
func (d *Document) lookup(id rmi.Ref, kind Kind) (*Element, error) {
	e, ok := d.elements[id]
	if !ok || e.Kind != kind {
		return nil, errors.Wrapf(ErrNotFound, "element %d", id)
	}
	return e, nil
}

// Transaction is the execution scope of one burst. Warnings raised while it
// is open are swallowed on commit.
type Transaction struct {
	doc       *Document
	changes   int
	warnings  []string
	committed bool
}

func (t *Transaction) warn(msg string) {
	t.warnings = append(t.warnings, msg)
}

func (t *Transaction) Commit() error {
	d := t.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.committed || d.tx != t {
		return errors.New("transaction is not open")
	}
	t.committed = true
	d.tx = nil
	d.revision++
	if len(t.warnings) > 0 {
		d.log.Debug("warnings swallowed", zap.Int("count", len(t.warnings)), zap.Strings("warnings", t.warnings))
	}
	d.log.Debug("transaction committed", zap.Int("changes", t.changes), zap.Int64("revision", d.revision))
	return nil
}

// Host opens one transaction per burst on the document.
type Host struct {
	doc *Document
}

func NewHost(doc *Document) *Host {
	return &Host{doc: doc}
}

func (h *Host) Begin() (rmiserver.Scope, error) {
	d := h.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return nil, ErrTransactionOpen
	}
	d.tx = &Transaction{doc: d}
	return d.tx, nil
}
