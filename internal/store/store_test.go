package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agrodata.dev/farm-pipeline/internal/store"
)

var _ = Describe("ObjectKey", func() {
	now := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)

	It("builds the canonical partitioned key", func() {
		key := store.ObjectKey(store.PartitionValid, "loc_1", now, "evt_abc123def456")
		Expect(key).To(Equal("valid/loc_1/20260830T140509_evt_abc123def456.json"))
	})

	It("keeps the warnings partition under valid/", func() {
		key := store.ObjectKey(store.PartitionWarnings, "loc_2", now, "evt_x")
		Expect(key).To(HavePrefix("valid/warnings/loc_2/"))
	})

	It("renders the timestamp in UTC", func() {
		cairo := time.FixedZone("EET", 2*60*60)
		local := time.Date(2026, 8, 30, 16, 5, 9, 0, cairo)
		key := store.ObjectKey(store.PartitionInvalid, "loc_3", local, "evt_y")
		Expect(key).To(ContainSubstring("20260830T140509"))
	})
})

var _ = Describe("MemoryStore", func() {
	var s *store.MemoryStore

	BeforeEach(func() {
		s = store.NewMemoryStore()
	})

	It("stores and retrieves documents with metadata", func() {
		meta := store.Metadata{Location: "loc_1", Status: "VALID"}
		Expect(s.Put(context.Background(), "valid/loc_1/a.json", []byte(`{}`), meta)).To(Succeed())

		obj, ok := s.Get("valid/loc_1/a.json")
		Expect(ok).To(BeTrue())
		Expect(obj.Body).To(Equal([]byte(`{}`)))
		Expect(obj.Meta.Location).To(Equal("loc_1"))
	})

	It("copies the body on write", func() {
		body := []byte(`{"a":1}`)
		Expect(s.Put(context.Background(), "k", body, store.Metadata{})).To(Succeed())
		body[0] = 'X'

		obj, _ := s.Get("k")
		Expect(obj.Body[0]).To(Equal(byte('{')))
	})

	It("lists keys by prefix in sorted order", func() {
		ctx := context.Background()
		Expect(s.Put(ctx, "valid/loc_2/b.json", nil, store.Metadata{})).To(Succeed())
		Expect(s.Put(ctx, "valid/loc_1/a.json", nil, store.Metadata{})).To(Succeed())
		Expect(s.Put(ctx, "invalid/loc_1/c.json", nil, store.Metadata{})).To(Succeed())

		Expect(s.Keys("valid/")).To(Equal([]string{
			"valid/loc_1/a.json",
			"valid/loc_2/b.json",
		}))
		Expect(s.Len()).To(Equal(3))
	})
})
