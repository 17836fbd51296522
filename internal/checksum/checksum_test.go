package checksum

import "testing"

func TestSum(t *testing.T) {
	got := Sum([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Sum = %s", got)
	}
	if Short(got) != "ba7816bf8f01" {
		t.Errorf("Short = %s", Short(got))
	}
	if Short("ab") != "ab" {
		t.Error("short input must be returned unchanged")
	}
}
