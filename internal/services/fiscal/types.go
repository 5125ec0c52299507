package fiscal

import "fmt"

// The registrar API prices goods in minor units (kopecks) and expresses
// quantity in thousandths, so one whole unit is 1000.
const QuantityPerUnit = 1000

type Good struct {
	Code  string `json:"code"` // 4-digit zero-padded
	Name  string `json:"name"`
	Price int64  `json:"price"` // minor units
}

type GoodEntry struct {
	Good     Good  `json:"good"`
	Quantity int64 `json:"quantity"`
}

type Payment struct {
	Type  string `json:"type"`
	Value int64  `json:"value"`
	Label string `json:"label,omitempty"`
}

// ReceiptRequest is the body for both supported receipt shapes. A non-empty
// Waybill selects the waybill-linked endpoint and carries the tracking-number
// correlation on the payment.
type ReceiptRequest struct {
	Goods    []GoodEntry `json:"goods"`
	Payments []Payment   `json:"payments"`
	Waybill  string      `json:"-"`
}

func (r ReceiptRequest) endpoint() string {
	if r.Waybill != "" {
		return "/receipts/waybill"
	}
	return "/receipts/sell"
}

// NewCashlessSale builds a plain cashless sale receipt.
func NewCashlessSale(goods []GoodEntry, totalMinor int64) ReceiptRequest {
	return ReceiptRequest{
		Goods:    goods,
		Payments: []Payment{{Type: "CASHLESS", Value: totalMinor}},
	}
}

// NewWaybillSale builds a waybill-linked receipt; the tracking number rides
// on the payment label.
func NewWaybillSale(goods []GoodEntry, totalMinor int64, waybill string) ReceiptRequest {
	return ReceiptRequest{
		Goods: goods,
		Payments: []Payment{{
			Type:  "CASHLESS",
			Value: totalMinor,
			Label: fmt.Sprintf("Waybill %s", waybill),
		}},
		Waybill: waybill,
	}
}

type Receipt struct {
	ID         string `json:"id"`
	FiscalCode string `json:"fiscal_code,omitempty"`
	ReceiptURL string `json:"receipt_url,omitempty"`
	Status     string `json:"status,omitempty"`
}

type Shift struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}
