package merkle

import "testing"

func TestRootIsOrderIndependent(t *testing.T) {
	a, err := Root([]string{"QmA", "QmB", "QmC"})
	if err != nil {
		t.Fatalf("Root() error = %v", err)
	}
	b, err := Root([]string{"QmC", "QmA", "QmB"})
	if err != nil {
		t.Fatalf("Root() error = %v", err)
	}
	if a != b {
		t.Fatalf("roots differ: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("root %q is not a hex sha256", a)
	}
}

func TestRootChangesWithContent(t *testing.T) {
	a, _ := Root([]string{"QmA", "QmB"})
	b, _ := Root([]string{"QmA", "QmX"})
	if a == b {
		t.Fatal("different CID sets produced the same root")
	}
}

func TestRootEmpty(t *testing.T) {
	if _, err := Root(nil); err == nil {
		t.Fatal("expected error for empty CID list")
	}
}

func TestVerify(t *testing.T) {
	cids := []string{"QmA", "QmB", "QmC"}
	root, err := Root(cids)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cids    []string
		root    string
		wantErr bool
	}{
		{name: "matching root", cids: cids, root: root, wantErr: false},
		{name: "reordered input", cids: []string{"QmB", "QmC", "QmA"}, root: root, wantErr: false},
		{name: "tampered set", cids: []string{"QmA", "QmB", "QmD"}, root: root, wantErr: true},
		{name: "bad hex", cids: cids, root: "zz", wantErr: true},
		{name: "empty set", cids: nil, root: root, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.cids, tt.root)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
