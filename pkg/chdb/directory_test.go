package chdb

import "testing"

func TestBucketBounds_Overloads(t *testing.T) {
	entries := map[uint32]uint32{
		0: 100, // TOTAL
		1: 3,
		2: 7,
		BucketCount - 1: 95,
	}

	raw := func(i uint32) (uint32, error) { return entries[i], nil }

	start, end, err := bucketBounds(0, raw)
	if err != nil || start != 0 || end != 3 {
		t.Fatalf("bucket 0: got (%d, %d, %v), want (0, 3, nil)", start, end, err)
	}

	start, end, err = bucketBounds(1, raw)
	if err != nil || start != 3 || end != 7 {
		t.Fatalf("bucket 1: got (%d, %d, %v), want (3, 7, nil)", start, end, err)
	}

	start, end, err = bucketBounds(BucketCount-1, raw)
	if err != nil || start != 95 || end != 100 {
		t.Fatalf("last bucket: got (%d, %d, %v), want (95, 100, nil)", start, end, err)
	}
}
