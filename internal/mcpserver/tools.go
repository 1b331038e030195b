package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Meraki MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolCheckBalance = mcp.NewTool("check_balance",
	mcp.WithDescription(
		"Check your Meraki wallet. Shows the spendable balance and the amount "+
			"held in escrow for open trade offers and pending purchases. Amounts are in VND."),
)

var ToolSearchProducts = mcp.NewTool("search_products",
	mcp.WithDescription(
		"List products currently available on the Meraki marketplace, newest first. "+
			"Shows price, trade value and whether each listing accepts trades."),
	mcp.WithString("seller_id",
		mcp.Description("Only show listings from this seller")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of products to return (default 20)")),
)

var ToolProposeTrade = mcp.NewTool("propose_trade",
	mcp.WithDescription(
		"Offer one of your items in exchange for a product. The greater of the item value and "+
			"the seller's trade value is held in escrow from your balance until the trade "+
			"completes or is cancelled. The offer is posted into your conversation with the seller."),
	mcp.WithString("product_id",
		mcp.Required(),
		mcp.Description("The product you want")),
	mcp.WithString("item_name",
		mcp.Required(),
		mcp.Description("Name of the item you are offering")),
	mcp.WithNumber("item_value",
		mcp.Required(),
		mcp.Description("Your valuation of the offered item in VND")),
	mcp.WithString("item_description",
		mcp.Description("Condition and details of the offered item")),
	mcp.WithString("notes",
		mcp.Description("Optional note to the seller")),
)

var ToolConfirmTrade = mcp.NewTool("confirm_trade",
	mcp.WithDescription(
		"Confirm a trade offer from its conversation message. The trade completes, escrow is "+
			"paid out to the seller minus the platform fee, and a transaction is recorded once "+
			"both the buyer and the seller have confirmed."),
	mcp.WithString("message_id",
		mcp.Required(),
		mcp.Description("ID of the trade offer message")),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Description("Your side of the trade"),
		mcp.Enum("buyer", "seller")),
)

var ToolAcceptTrade = mcp.NewTool("accept_trade",
	mcp.WithDescription(
		"Accept a trade offer on one of your products. Equivalent to confirming as the seller."),
	mcp.WithString("offer_id",
		mcp.Required(),
		mcp.Description("The trade offer ID")),
)

var ToolCancelTrade = mcp.NewTool("cancel_trade",
	mcp.WithDescription(
		"Withdraw an offer you made or decline one you received. Escrowed funds return to the proposer. "+
			"Completed trades cannot be cancelled."),
	mcp.WithString("offer_id",
		mcp.Required(),
		mcp.Description("The trade offer ID")),
	mcp.WithString("reason",
		mcp.Description("Optional reason shown to the other party")),
)

var ToolListTradeOffers = mcp.NewTool("list_trade_offers",
	mcp.WithDescription(
		"List trade offers you proposed or received, newest first, with their confirmation state."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of offers to return (default 20)")),
)

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Get a completed trade or a purchase, including amount, platform fee, shipping and status timeline."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction ID")),
)
