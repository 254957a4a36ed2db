package chdb

// bucketBounds centralizes the bucket-directory entry-0 overload described
// in spec §3/§4.1: entry 0 holds TOTAL rather than "start of bucket 0", and
// the end of the last bucket is read back from entry 0. raw is a function
// that reads directory entry i; it is called at most twice.
func bucketBounds(prefix24 uint32, raw func(i uint32) (uint32, error)) (start, end uint32, err error) {
	start, err = raw(prefix24)
	if err != nil {
		return 0, 0, err
	}

	switch prefix24 {
	case 0:
		start = 0
	case BucketCount - 1:
		end, err = raw(0)

		return start, end, err
	}

	end, err = raw(prefix24 + 1)
	if err != nil {
		return 0, 0, err
	}

	return start, end, nil
}
