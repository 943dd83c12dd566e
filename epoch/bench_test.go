package epoch

import "testing"

func BenchmarkProtectAndDrain(b *testing.B) {
	mgr, err := New(128)
	if err != nil {
		b.Fatal(err)
	}
	defer mgr.Dispose()

	h, err := mgr.Acquire()
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := mgr.ProtectAndDrain(h); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkProtectAndDrainParallel(b *testing.B) {
	mgr, err := New(128)
	if err != nil {
		b.Fatal(err)
	}
	defer mgr.Dispose()

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		h, err := mgr.Acquire()
		if err != nil {
			b.Fatal(err)
		}
		defer mgr.Release(h)

		for pb.Next() {
			if _, err := mgr.ProtectAndDrain(h); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkAcquireRelease(b *testing.B) {
	mgr, err := New(128)
	if err != nil {
		b.Fatal(err)
	}
	defer mgr.Dispose()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		h, err := mgr.Acquire()
		if err != nil {
			b.Fatal(err)
		}
		mgr.Release(h)
	}
}
