package sim

import (
	"errors"
	"testing"
)

func planeObject(id EntityNetID, size float64) LevelObject {
	return LevelObject{
		NetID: id,
		Desc:  LevelObjectDesc{Kind: ShapePlane, Size: size},
	}
}

func cubeObject(id EntityNetID, logic CollisionLogic) LevelObject {
	return LevelObject{
		NetID: id,
		Desc:  LevelObjectDesc{Kind: ShapeCube, Size: 1},
		Logic: logic,
	}
}

func TestLevelStateRejectsDuplicateInsert(t *testing.T) {
	level := NewLevelState()
	first := planeObject(3, 20)
	if err := level.Insert(first); err != nil {
		t.Fatalf("insert: %v", err)
	}

	imposter := cubeObject(3, LogicDeath)
	if err := level.Insert(imposter); !errors.Is(err, ErrDuplicateObject) {
		t.Fatalf("duplicate insert err = %v, want ErrDuplicateObject", err)
	}

	got, ok := level.Get(3)
	if !ok {
		t.Fatal("object 3 missing after rejected duplicate")
	}
	if got.Desc.Kind != ShapePlane {
		t.Fatalf("stored object kind = %q, want original plane", got.Desc.Kind)
	}
	if level.Len() != 1 {
		t.Fatalf("len = %d, want 1", level.Len())
	}
}

func TestLevelStateUpdateKeepsOrder(t *testing.T) {
	level := NewLevelState()
	for id := EntityNetID(1); id <= 3; id++ {
		if err := level.Insert(planeObject(id, float64(id))); err != nil {
			t.Fatalf("insert %d: %v", id, err)
		}
	}

	updated := cubeObject(2, LogicFinish)
	if !level.Update(updated) {
		t.Fatal("update of known id reported false")
	}
	if level.Update(cubeObject(9, LogicNone)) {
		t.Fatal("update of unknown id reported true")
	}

	objects := level.Objects()
	wantOrder := []EntityNetID{1, 2, 3}
	for i, id := range wantOrder {
		if objects[i].NetID != id {
			t.Fatalf("objects[%d].NetID = %d, want %d", i, objects[i].NetID, id)
		}
	}
	if objects[1].Desc.Kind != ShapeCube || objects[1].Logic != LogicFinish {
		t.Fatalf("update did not replace object 2: %+v", objects[1])
	}
}

func TestLevelStateRemoveReindexes(t *testing.T) {
	level := NewLevelState()
	for id := EntityNetID(1); id <= 4; id++ {
		if err := level.Insert(planeObject(id, 1)); err != nil {
			t.Fatalf("insert %d: %v", id, err)
		}
	}

	removed, ok := level.Remove(2)
	if !ok || removed.NetID != 2 {
		t.Fatalf("remove(2) = %+v, %v", removed, ok)
	}
	if _, ok := level.Remove(2); ok {
		t.Fatal("second remove of same id reported true")
	}

	wantOrder := []EntityNetID{1, 3, 4}
	objects := level.Objects()
	if len(objects) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(objects), len(wantOrder))
	}
	for i, id := range wantOrder {
		if objects[i].NetID != id {
			t.Fatalf("objects[%d].NetID = %d, want %d", i, objects[i].NetID, id)
		}
		got, ok := level.Get(id)
		if !ok || got.NetID != id {
			t.Fatalf("lookup of %d after reindex = %+v, %v", id, got, ok)
		}
	}
}

func TestLevelStateReplayRestoresSnapshot(t *testing.T) {
	level := NewLevelState()
	if err := level.Insert(planeObject(7, 5)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	snapshot := []LevelObject{
		planeObject(1, 20),
		cubeObject(2, LogicDeath),
		cubeObject(3, LogicFinish),
	}
	level.Replay(snapshot)

	if level.Contains(7) {
		t.Fatal("pre-replay object survived replay")
	}
	objects := level.Objects()
	if len(objects) != 3 {
		t.Fatalf("len = %d, want 3", len(objects))
	}
	for i, want := range snapshot {
		if objects[i].NetID != want.NetID {
			t.Fatalf("objects[%d].NetID = %d, want %d", i, objects[i].NetID, want.NetID)
		}
	}
}

func TestParseCollisionLogic(t *testing.T) {
	cases := map[string]CollisionLogic{
		"":       LogicNone,
		"none":   LogicNone,
		"death":  LogicDeath,
		"finish": LogicFinish,
	}
	for in, want := range cases {
		got, err := ParseCollisionLogic(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseCollisionLogic("bounce"); err == nil {
		t.Fatal("unknown logic parsed without error")
	}
}
