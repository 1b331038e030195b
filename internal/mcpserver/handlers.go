package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *MerakiClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *MerakiClient) *Handlers {
	return &Handlers{client: client}
}

// HandleCheckBalance returns the user's balance.
func (h *Handlers) HandleCheckBalance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetBalance(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check balance: %v", err)), nil
	}

	text, err := formatBalance(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse balance: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleSearchProducts lists active listings.
func (h *Handlers) HandleSearchProducts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.SearchProducts(ctx, req.GetString("seller_id", ""), req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search products: %v", err)), nil
	}

	text, err := formatProductList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse products: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleProposeTrade creates a trade offer.
func (h *Handlers) HandleProposeTrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	productID := req.GetString("product_id", "")
	if productID == "" {
		return mcp.NewToolResultError("product_id is required"), nil
	}
	name := req.GetString("item_name", "")
	if name == "" {
		return mcp.NewToolResultError("item_name is required"), nil
	}
	value := req.GetInt("item_value", -1)
	if value < 0 {
		return mcp.NewToolResultError("item_value must be a non-negative amount in VND"), nil
	}

	raw, err := h.client.ProposeTrade(ctx, ProposeTradeRequest{
		ProductID:              productID,
		OfferedItemName:        name,
		OfferedItemDescription: req.GetString("item_description", ""),
		OfferedItemValue:       int64(value),
		Notes:                  req.GetString("notes", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to propose trade: %v", err)), nil
	}

	var resp struct {
		Offer   map[string]any `json:"offer"`
		Message map[string]any `json:"message"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse offer: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Trade offer sent.\n")
	writeOffer(&sb, resp.Offer)
	fmt.Fprintf(&sb, "  Message ID: %s\n", getString(resp.Message, "id"))
	sb.WriteString("\nUse confirm_trade with this message_id and role 'buyer' when you are ready.")
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleConfirmTrade confirms an offer from its message.
func (h *Handlers) HandleConfirmTrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	messageID := req.GetString("message_id", "")
	if messageID == "" {
		return mcp.NewToolResultError("message_id is required"), nil
	}
	role := req.GetString("role", "")
	if role != "buyer" && role != "seller" {
		return mcp.NewToolResultError("role must be 'buyer' or 'seller'"), nil
	}

	raw, err := h.client.ConfirmTrade(ctx, messageID, role)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to confirm trade: %v", err)), nil
	}
	return formatConfirmation(raw)
}

// HandleAcceptTrade confirms an offer as its seller.
func (h *Handlers) HandleAcceptTrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	offerID := req.GetString("offer_id", "")
	if offerID == "" {
		return mcp.NewToolResultError("offer_id is required"), nil
	}

	raw, err := h.client.AcceptTrade(ctx, offerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to accept trade: %v", err)), nil
	}
	return formatConfirmation(raw)
}

// HandleCancelTrade withdraws or declines an offer.
func (h *Handlers) HandleCancelTrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	offerID := req.GetString("offer_id", "")
	if offerID == "" {
		return mcp.NewToolResultError("offer_id is required"), nil
	}

	raw, err := h.client.CancelTrade(ctx, offerID, req.GetString("reason", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel trade: %v", err)), nil
	}

	var resp struct {
		Offer map[string]any `json:"offer"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse offer: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Trade offer closed. Escrowed funds were returned to the proposer.\n")
	writeOffer(&sb, resp.Offer)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListTradeOffers lists the user's offers.
func (h *Handlers) HandleListTradeOffers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListTradeOffers(ctx, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list trade offers: %v", err)), nil
	}

	var resp struct {
		Offers []map[string]any `json:"offers"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse offers: %v", err)), nil
	}
	if len(resp.Offers) == 0 {
		return mcp.NewToolResultText("No trade offers."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d trade offer(s):\n\n", len(resp.Offers))
	for i, o := range resp.Offers {
		fmt.Fprintf(&sb, "%d.", i+1)
		writeOffer(&sb, o)
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetTransaction returns one transaction.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}

	var tx map[string]any
	if err := json.Unmarshal(raw, &tx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transaction: %v", err)), nil
	}

	var sb strings.Builder
	writeTransaction(&sb, tx)
	if timeline, ok := tx["timeline"].([]any); ok && len(timeline) > 0 {
		sb.WriteString("  Timeline:\n")
		for _, e := range timeline {
			if ev, ok := e.(map[string]any); ok {
				fmt.Fprintf(&sb, "    - %s: %s\n", getString(ev, "status"), getString(ev, "description"))
			}
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

func formatConfirmation(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var resp struct {
		Offer       map[string]any `json:"offer"`
		Transaction map[string]any `json:"transaction"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse confirmation: %v", err)), nil
	}

	var sb strings.Builder
	if resp.Transaction != nil {
		sb.WriteString("Trade completed.\n")
		writeOffer(&sb, resp.Offer)
		writeTransaction(&sb, resp.Transaction)
		return mcp.NewToolResultText(sb.String()), nil
	}

	sb.WriteString("Confirmation recorded. Waiting for the other party.\n")
	writeOffer(&sb, resp.Offer)
	return mcp.NewToolResultText(sb.String()), nil
}

func formatBalance(raw json.RawMessage) (string, error) {
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	bal := resp
	if b, ok := resp["balance"].(map[string]any); ok {
		bal = b
	}

	var sb strings.Builder
	sb.WriteString("Wallet:\n")
	fmt.Fprintf(&sb, "  Available: %s VND\n", vnd(bal, "balance"))
	if v, ok := getFloat(bal, "escrowBalance"); ok && v != 0 {
		fmt.Fprintf(&sb, "  In escrow: %s VND\n", vnd(bal, "escrowBalance"))
	}
	return sb.String(), nil
}

func formatProductList(raw json.RawMessage) (string, error) {
	var resp struct {
		Products []map[string]any `json:"products"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected products response format")
	}
	if len(resp.Products) == 0 {
		return "No products found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d product(s):\n\n", len(resp.Products))
	for i, p := range resp.Products {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, getString(p, "title"), getString(p, "id"))
		fmt.Fprintf(&sb, "   Seller: %s\n", getString(p, "sellerId"))
		if allow, _ := p["allowBuy"].(bool); allow {
			fmt.Fprintf(&sb, "   Price: %s VND\n", vnd(p, "price"))
		}
		if allow, _ := p["allowTrade"].(bool); allow {
			if _, ok := getFloat(p, "tradeValue"); ok {
				fmt.Fprintf(&sb, "   Open to trades from %s VND\n", vnd(p, "tradeValue"))
			} else {
				sb.WriteString("   Open to trades\n")
			}
		}
	}
	return sb.String(), nil
}

func writeOffer(sb *strings.Builder, o map[string]any) {
	if o == nil {
		return
	}
	fmt.Fprintf(sb, "  Offer: %s (%s)\n", getString(o, "id"), getString(o, "state"))
	fmt.Fprintf(sb, "  Product: %s\n", getString(o, "productTitle", "productId"))
	if item, ok := o["offeredItem"].(map[string]any); ok {
		fmt.Fprintf(sb, "  Offered item: %s, valued %s VND\n", getString(item, "name"), vnd(item, "value"))
	}
	fmt.Fprintf(sb, "  Escrowed: %s VND\n", vnd(o, "escrowAmount"))
	fmt.Fprintf(sb, "  Confirmed: buyer=%t seller=%t\n", getBool(o, "confirmedByBuyer"), getBool(o, "confirmedBySeller"))
	if v := getString(o, "cancelReason"); v != "" {
		fmt.Fprintf(sb, "  Reason: %s\n", v)
	}
}

func writeTransaction(sb *strings.Builder, tx map[string]any) {
	fmt.Fprintf(sb, "  Transaction: %s (%s %s)\n", getString(tx, "id"), getString(tx, "type"), getString(tx, "status"))
	fmt.Fprintf(sb, "  Amount: %s VND\n", vnd(tx, "amount"))
	fmt.Fprintf(sb, "  Platform fee: %s VND\n", vnd(tx, "platformFee"))
	if _, ok := getFloat(tx, "shipping"); ok {
		fmt.Fprintf(sb, "  Shipping: %s VND\n", vnd(tx, "shipping"))
	}
}

// vnd renders an integer amount with thousands separators, e.g. 1.250.000.
func vnd(m map[string]any, key string) string {
	f, ok := getFloat(m, key)
	if !ok {
		return "0"
	}
	n := int64(f)
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	digits := fmt.Sprintf("%d", n)
	var out []byte
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, digits[i])
	}
	return sign + string(out)
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
