package descriptor

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func mustParse(t *testing.T, text string, opts Options) *Cohort {
	t.Helper()
	c, err := Parse("test.csv", strings.NewReader(text), opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return c
}

func TestParsePreservesFileOrder(t *testing.T) {
	text := "uid,volume,segmentation\n" +
		"p3,a.nii,a_seg.nii\n" +
		"p1,b.nii,\n" +
		"p2,c.nii,c_seg.nii\n"
	c := mustParse(t, text, Options{})

	if c.Len() != 3 {
		t.Fatalf("len=%d want 3", c.Len())
	}
	if got, want := c.UIDs(), []string{"p3", "p1", "p2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order=%v want %v", got, want)
	}
	if got := c.Cases[1].Row; got != 3 {
		t.Fatalf("row of p1=%d want 3", got)
	}
	if i, ok := c.Index("p2"); !ok || i != 2 {
		t.Fatalf("Index(p2)=%d,%v", i, ok)
	}
}

func TestParseEmptyCellsAreValid(t *testing.T) {
	c := mustParse(t, "uid,volume,segmentation\np1,,\n", Options{})
	rec := c.Cases[0]
	r, ok := rec.Resource("volume")
	if !ok || !r.Empty() {
		t.Fatalf("expected empty volume ref, got %+v ok=%v", r, ok)
	}
	if got := rec.ByKind(KindImage); len(got) != 0 {
		t.Fatalf("ByKind should skip empty cells, got %v", got)
	}
}

func TestParseClassifiesColumns(t *testing.T) {
	c := mustParse(t, "uid,T1 Volume,Primary_Volume,Lesion_Seg,markups,notes\np1,a,b,c,d,e\n", Options{})
	rec := c.Cases[0]

	cases := map[string]Kind{
		"T1 Volume":      KindImage,
		"Primary_Volume": KindImage,
		"Lesion_Seg":     KindLabel,
		"markups":        KindPointSet,
		"notes":          KindOther,
	}
	for col, want := range cases {
		if got := rec.Resources[col].Kind; got != want {
			t.Fatalf("%s: kind=%v want %v", col, got, want)
		}
	}
	if !rec.Resources["Primary_Volume"].Primary || rec.Resources["T1 Volume"].Primary {
		t.Fatalf("primary flag misassigned: %+v", rec.Resources)
	}
	if got := rec.ByKind(KindImage); len(got) != 2 || got[0].Column != "T1 Volume" {
		t.Fatalf("ByKind(image) should keep column order, got %+v", got)
	}
}

func TestParseCustomClassifier(t *testing.T) {
	cls := ClassifierFunc(func(col string) Kind {
		if strings.HasPrefix(col, "ct") {
			return KindImage
		}
		return KindOther
	})
	c := mustParse(t, "uid,ct_scan,volume\np1,a,b\n", Options{Classifier: cls})
	if k := c.Cases[0].Resources["ct_scan"].Kind; k != KindImage {
		t.Fatalf("ct_scan kind=%v", k)
	}
	if k := c.Cases[0].Resources["volume"].Kind; k != KindOther {
		t.Fatalf("custom classifier must replace the default, volume kind=%v", k)
	}
}

func TestParseDuplicateUIDReportsEveryRow(t *testing.T) {
	text := "uid,volume\n" +
		"a,1\n" + // row 2
		"b,2\n" + // row 3
		"a,3\n" + // row 4
		"c,4\n" + // row 5
		"b,5\n" + // row 6
		"a,6\n" // row 7
	_, err := Parse("dups.csv", strings.NewReader(text), Options{})
	if !errors.Is(err, ErrDuplicateUID) {
		t.Fatalf("expected ErrDuplicateUID, got %v", err)
	}
	var de *DuplicateUIDError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DuplicateUIDError, got %T", err)
	}
	want := []Duplicate{
		{UID: "a", Rows: []int{2, 4, 7}},
		{UID: "b", Rows: []int{3, 6}},
	}
	if !reflect.DeepEqual(de.Duplicates, want) {
		t.Fatalf("duplicates=%+v want %+v", de.Duplicates, want)
	}
}

func TestParseShortRowsArePadded(t *testing.T) {
	c := mustParse(t, `uid,volume,segmentation
p1,a.nii,a_seg.nii
p2,b.nii
`, Options{})
	if c.Len() != 2 {
		t.Fatalf("len=%d want 2", c.Len())
	}
	rec := c.Cases[1]
	if r := rec.Resources["volume"]; r.Path != "b.nii" {
		t.Fatalf("volume=%q want b.nii", r.Path)
	}
	if r, ok := rec.Resource("segmentation"); !ok || !r.Empty() {
		t.Fatalf("missing cell should be an empty ref, got %+v ok=%v", r, ok)
	}
}

func TestParseReportsBlankAndDuplicateTogether(t *testing.T) {
	_, err := Parse("both.csv", strings.NewReader(`uid,volume
a,1
,2
a,3
`), Options{})
	var me *MalformedError
	if !errors.As(err, &me) || !reflect.DeepEqual(me.Rows, []int{3}) {
		t.Fatalf("expected blank uid at row 3, got %v", err)
	}
	var de *DuplicateUIDError
	if !errors.As(err, &de) || !reflect.DeepEqual(de.Duplicates, []Duplicate{{UID: "a", Rows: []int{2, 4}}}) {
		t.Fatalf("expected duplicate a at rows 2,4, got %v", err)
	}
}

func TestParseUIDIsCaseSensitive(t *testing.T) {
	c := mustParse(t, "uid,volume\nP1,a\np1,b\n", Options{})
	if c.Len() != 2 {
		t.Fatalf("P1 and p1 are distinct, len=%d", c.Len())
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"empty file", ""},
		{"no uid column", "id,volume\np1,a\n"},
		{"uid column differs in case", "UID,volume\np1,a\n"},
		{"only uid", "uid\np1\n"},
		{"repeated header", "uid,volume,volume\np1,a,b\n"},
		{"blank uid", "uid,volume\n,a\n"},
		{"ragged row", "uid,volume\np1,a,extra\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("bad.csv", strings.NewReader(tc.text), Options{})
			if !errors.Is(err, ErrMalformedDescriptor) {
				t.Fatalf("expected ErrMalformedDescriptor, got %v", err)
			}
		})
	}
}

func TestParseHeaderOnlyYieldsEmptyCohort(t *testing.T) {
	c := mustParse(t, "uid,volume\n", Options{})
	if c.Len() != 0 {
		t.Fatalf("len=%d want 0", c.Len())
	}
}

func TestParseStripsBOM(t *testing.T) {
	c := mustParse(t, "\ufeffuid,volume\np1,a\n", Options{})
	if c.Cases[0].UID != "p1" {
		t.Fatalf("uid=%q", c.Cases[0].UID)
	}
}

func TestParseFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cohort.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"uid", "volume", "segmentation"},
		{"p2", "b.nii", ""},
		{"p1", "a.nii", "a_seg.nii"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	_ = f.Close()

	c, err := ParseFile(path, Options{})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if got := c.UIDs(); !reflect.DeepEqual(got, []string{"p2", "p1"}) {
		t.Fatalf("uids=%v", got)
	}
	if c.Cases[1].Row != 3 {
		t.Fatalf("p1 row=%d want 3", c.Cases[1].Row)
	}
	if !c.Cases[0].Resources["segmentation"].Empty() {
		t.Fatalf("trailing empty cell should be an empty ref")
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
