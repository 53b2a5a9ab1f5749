package leaseq

import (
	"bytes"
	"strconv"
	"testing"
	"time"
)

func makeBenchTask(payloadSize int) Task {
	return Task{
		ID:           123,
		Class:        "email.send",
		DataID:       456,
		LeaseOwner:   "host:42:0b7c1f2e",
		LeaseExpires: time.UnixMilli(1730000005000),
		Priority:     PriorityDefault,
		FailureCount: 1,
		FailureTime:  time.UnixMilli(1730000000000),
		LastError:    string(bytes.Repeat([]byte("x"), payloadSize)),
	}
}

func BenchmarkTask_JSON_Encode(b *testing.B) {
	enc := &JSONEncoder{}
	for _, sz := range []int{64, 512, 2048} {
		b.Run(byteSizeName(sz), func(b *testing.B) {
			b.ReportAllocs()
			t := makeBenchTask(sz)
			warm, _ := enc.Encode(t)
			b.SetBytes(int64(len(warm)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := enc.Encode(t); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkTask_JSON_Decode(b *testing.B) {
	enc := &JSONEncoder{}
	for _, sz := range []int{64, 512, 2048} {
		b.Run(byteSizeName(sz), func(b *testing.B) {
			b.ReportAllocs()
			raw, _ := enc.Encode(makeBenchTask(sz))
			b.SetBytes(int64(len(raw)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var t Task
				if err := enc.Decode(raw, &t); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCheckLease(b *testing.B) {
	t := makeBenchTask(0)
	now := t.LeaseExpires.Add(-time.Second)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := CheckLease(&t, now); err != nil {
			b.Fatal(err)
		}
	}
}

func byteSizeName(n int) string {
	if n >= 1024 {
		return strconv.Itoa(n/1024) + "KB"
	}
	return strconv.Itoa(n) + "B"
}
