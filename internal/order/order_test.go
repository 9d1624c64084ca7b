package order_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/resilient-orders/internal/order"
)

var _ = Describe("Decode", func() {
	It("should decode an array of orders", func() {
		payload := []byte(`[
			{"id": 1, "userId": 7, "items": [{"id": 10, "name": "burger", "quantity": 2}]},
			{"id": 2, "userId": 8, "items": []}
		]`)

		orders, err := order.Decode(payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(orders).To(HaveLen(2))
		Expect(orders[0]).To(Equal(order.Order{
			ID:     1,
			UserID: 7,
			Items:  []order.Item{{ID: 10, Name: "burger", Quantity: 2}},
		}))
		Expect(orders[1].Items).To(BeEmpty())
	})

	It("should accept an empty array", func() {
		orders, err := order.Decode([]byte(" [] "))
		Expect(err).NotTo(HaveOccurred())
		Expect(orders).To(BeEmpty())
	})

	It("should accept items with an empty name", func() {
		orders, err := order.Decode([]byte(`[{"id":1,"userId":1,"items":[{"id":1,"name":"","quantity":0}]}]`))
		Expect(err).NotTo(HaveOccurred())
		Expect(orders[0].Items[0].Name).To(BeEmpty())
	})

	DescribeTable("rejects payloads that are not a list of valid orders",
		func(payload string) {
			_, err := order.Decode([]byte(payload))
			Expect(err).To(HaveOccurred())
		},
		Entry("empty body", ""),
		Entry("null", "null"),
		Entry("object", `{"id": 1}`),
		Entry("truncated array", `[{"id": 1`),
		Entry("wrong field type", `[{"id": "one"}]`),
		Entry("negative quantity", `[{"id":1,"userId":1,"items":[{"id":1,"name":"poke","quantity":-1}]}]`),
	)

	It("should report ErrNotArray for non-array payloads", func() {
		_, err := order.Decode([]byte(`{"orders": []}`))
		Expect(err).To(MatchError(order.ErrNotArray))
	})
})
