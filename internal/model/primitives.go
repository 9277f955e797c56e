/*
 * Copyright (c) 2023 Zander Schwid & Co. LLC.
 * SPDX-License-Identifier: BUSL-1.1
 */

package model

import (
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codeallergy/value-rmi/rmi"
	"github.com/pkg/errors"
)

// ElevationTolerance is how close two elevations must be to name the same level.
const ElevationTolerance = 1e-6

var ErrInvalidGeometry = errors.New("invalid geometry")

// Primitives is the service object published to clients. Every exported
// method is a remote procedure.
type Primitives struct {
	doc *Document

	familyMu sync.Mutex
	families map[string]rmi.Ref
}

func NewPrimitives(doc *Document) *Primitives {
	return &Primitives{
		doc:      doc,
		families: make(map[string]rmi.Ref),
	}
}

func (p *Primitives) ElementCount() int32 {
	return int32(p.doc.Len())
}

func (p *Primitives) CreateLevelAtElevation(elevation float64) (rmi.Ref, error) {
	if math.IsNaN(elevation) || math.IsInf(elevation, 0) {
		return rmi.NullRef, errors.Wrapf(ErrInvalidGeometry, "elevation %v", elevation)
	}
	var id rmi.Ref
	err := p.doc.mutate(func(tx *Transaction) error {
		id = p.doc.add(&Element{Kind: LevelKind, Elevation: elevation})
		return nil
	})
	return id, err
}

// FindLevelAtElevation returns the null handle when no level matches.
func (p *Primitives) FindLevelAtElevation(elevation float64) rmi.Ref {
	id := rmi.NullRef
	p.doc.read(func() {
		id = p.doc.findLevel(elevation)
	})
	return id
}

func (p *Primitives) FindOrCreateLevelAtElevation(elevation float64) (rmi.Ref, error) {
	if id := p.FindLevelAtElevation(elevation); !id.IsNull() {
		return id, nil
	}
	return p.CreateLevelAtElevation(elevation)
}

func (p *Primitives) LevelElevation(level rmi.Ref) (float64, error) {
	var elevation float64
	var err error
	p.doc.read(func() {
		var e *Element
		if e, err = p.doc.lookup(level, LevelKind); err == nil {
			elevation = e.Elevation
		}
	})
	return elevation, err
}

// CreateWall creates one wall per segment of the polyline and returns the first.
func (p *Primitives) CreateWall(points []rmi.XYZ, base rmi.Ref, top rmi.Ref) (rmi.Ref, error) {
	if len(points) < 2 {
		return rmi.NullRef, errors.Wrapf(ErrInvalidGeometry, "wall needs 2 points, got %d", len(points))
	}
	first := rmi.NullRef
	err := p.doc.mutate(func(tx *Transaction) error {
		if _, err := p.doc.lookup(base, LevelKind); err != nil {
			return errors.Wrap(err, "base level")
		}
		if !top.IsNull() {
			if _, err := p.doc.lookup(top, LevelKind); err != nil {
				return errors.Wrap(err, "top level")
			}
		}
		for i := 1; i < len(points); i++ {
			a, b := points[i-1], points[i]
			if distance(a, b) < ElevationTolerance {
				tx.warn("skipped zero length wall segment")
				continue
			}
			id := p.doc.add(&Element{Kind: WallKind, Level: base, Top: top, Points: []rmi.XYZ{a, b}})
			if first.IsNull() {
				first = id
			}
		}
		if first.IsNull() {
			return errors.Wrap(ErrInvalidGeometry, "all wall segments are degenerate")
		}
		return nil
	})
	return first, err
}

func (p *Primitives) CreateFloor(points []rmi.XYZ, level rmi.Ref) (rmi.Ref, error) {
	if len(points) < 3 {
		return rmi.NullRef, errors.Wrapf(ErrInvalidGeometry, "floor needs 3 points, got %d", len(points))
	}
	var id rmi.Ref
	err := p.doc.mutate(func(tx *Transaction) error {
		if _, err := p.doc.lookup(level, LevelKind); err != nil {
			return errors.Wrap(err, "floor level")
		}
		outline := append([]rmi.XYZ(nil), points...)
		if distance(outline[0], outline[len(outline)-1]) < ElevationTolerance {
			outline = outline[:len(outline)-1]
		}
		id = p.doc.add(&Element{Kind: FloorKind, Level: level, Points: outline})
		return nil
	})
	return id, err
}

func (p *Primitives) CreateColumn(location rmi.XYZ, base rmi.Ref, top rmi.Ref, width float64) (rmi.Ref, error) {
	if width <= 0 {
		return rmi.NullRef, errors.Wrapf(ErrInvalidGeometry, "column width %v", width)
	}
	var id rmi.Ref
	err := p.doc.mutate(func(tx *Transaction) error {
		if _, err := p.doc.lookup(base, LevelKind); err != nil {
			return errors.Wrap(err, "base level")
		}
		if _, err := p.doc.lookup(top, LevelKind); err != nil {
			return errors.Wrap(err, "top level")
		}
		id = p.doc.add(&Element{Kind: ColumnKind, Level: base, Top: top, Points: []rmi.XYZ{location}, Width: width})
		return nil
	})
	return id, err
}

// LoadFamily loads a family once per path and returns the cached handle afterwards.
func (p *Primitives) LoadFamily(path string) (rmi.Ref, error) {
	key := filepath.Clean(path)
	p.familyMu.Lock()
	defer p.familyMu.Unlock()
	if id, ok := p.families[key]; ok {
		return id, nil
	}
	if !strings.EqualFold(filepath.Ext(key), ".rfa") {
		return rmi.NullRef, errors.Errorf("not a family file: %s", path)
	}
	var id rmi.Ref
	err := p.doc.mutate(func(tx *Transaction) error {
		name := strings.TrimSuffix(filepath.Base(key), filepath.Ext(key))
		id = p.doc.add(&Element{Kind: FamilyKind, Name: name})
		return nil
	})
	if err != nil {
		return rmi.NullRef, err
	}
	p.families[key] = id
	return id, nil
}

func (p *Primitives) MoveElement(id rmi.Ref, translation rmi.XYZ) error {
	return p.doc.mutate(func(tx *Transaction) error {
		e, ok := p.doc.elements[id]
		if !ok {
			return errors.Wrapf(ErrNotFound, "element %d", id)
		}
		if e.Kind == LevelKind {
			e.Elevation += translation.Z
			return nil
		}
		for i := range e.Points {
			e.Points[i].X += translation.X
			e.Points[i].Y += translation.Y
			e.Points[i].Z += translation.Z
		}
		return nil
	})
}

// DeleteElement removes an element together with everything hosted on it.
func (p *Primitives) DeleteElement(id rmi.Ref) error {
	err := p.doc.mutate(func(tx *Transaction) error {
		if _, ok := p.doc.elements[id]; !ok {
			return errors.Wrapf(ErrNotFound, "element %d", id)
		}
		delete(p.doc.elements, id)
		for other, e := range p.doc.elements {
			if e.Level == id || e.Top == id {
				delete(p.doc.elements, other)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.familyMu.Lock()
	defer p.familyMu.Unlock()
	for key, family := range p.families {
		if family == id {
			delete(p.families, key)
		}
	}
	return nil
}

// findLevel must be called with the lock held.
func (d *Document) findLevel(elevation float64) rmi.Ref {
	for id, e := range d.elements {
		if e.Kind == LevelKind && math.Abs(e.Elevation-elevation) < ElevationTolerance {
			return id
		}
	}
	return rmi.NullRef
}

func distance(a, b rmi.XYZ) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
