package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paymebot/payrelay/internal/domain"
)

type commandHelp struct {
	cmd  string
	desc string
}

var userCommands = []commandHelp{
	{"/start", "Start the bot and register"},
	{"/help", "Show this help message"},
	{"/balance", "Check your balance"},
	{"/deposit", "Get deposit instructions"},
	{"/withdraw {amount}", "Request withdrawal"},
	{"/transactions", "List your recent transactions"},
	{"/bank {Bank Name}", "Set your bank name"},
	{"/account {account number}", "Set your account number"},
	{"/profile", "View your profile details"},
}

var approverCommands = []commandHelp{
	{"/qr {imageURL}", "Set deposit account qr code image URL"},
	{"/approve {amount} = {id}", "Approve a transaction by ID"},
	{"/reject {id} = {reason}", "Reject a transaction with reason"},
	{"/pending", "List all pending transactions"},
	{"/dashboard", "Show summary of users and transactions"},
}

func helpText(isApprover bool) string {
	var b strings.Builder
	b.WriteString("Available Commands:\n\n")
	commands := userCommands
	if isApprover {
		commands = append(append([]commandHelp{}, userCommands...), approverCommands...)
	}
	for _, c := range commands {
		fmt.Fprintf(&b, "%s - %s\n", c.cmd, c.desc)
	}
	return b.String()
}

func formatProfile(u domain.User) string {
	return fmt.Sprintf("Your Profile\n\n"+
		"User ID: %d\n"+
		"Username: @%s\n"+
		"Balance: Rs. %s\n"+
		"Bank Name: %s\n"+
		"Account Number: %s\n\n"+
		"Use /bank and /account to update your bank details.",
		u.ID, orUnknown(u.Handle), u.Balance.String(),
		orNotSet(u.BankName), orNotSet(u.AccountNumber))
}

func formatTransactions(list []domain.TransactionDetail, forApprover bool) string {
	if len(list) == 0 {
		return "No transactions found."
	}
	var b strings.Builder
	if forApprover {
		b.WriteString("Pending Transactions:\n\n")
	} else {
		b.WriteString("Your Recent Transactions:\n\n")
	}
	for _, t := range list {
		fmt.Fprintf(&b, "#%d\n", t.ID)
		fmt.Fprintf(&b, "User: @%s (ID: %d)\n", orUnknown(t.Handle), t.UserID)
		fmt.Fprintf(&b, "Type: %s\n", strings.ToUpper(string(t.Kind)))
		fmt.Fprintf(&b, "Amount: Rs. %s\n", amountLabel(t.Amount))
		fmt.Fprintf(&b, "Status: %s\n", t.Status)
		fmt.Fprintf(&b, "Date: %s\n", t.CreatedAt.Format("2006-01-02 15:04"))
		if t.BankName != "" {
			fmt.Fprintf(&b, "Bank: %s\n", t.BankName)
		}
		if t.AccountNumber != "" {
			fmt.Fprintf(&b, "Account: %s\n", t.AccountNumber)
		}
		if t.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", t.Reason)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDashboard(stats domain.DashboardStats) string {
	return fmt.Sprintf("Admin Dashboard\n\n"+
		"Users\n"+
		"Total Users: %d\n"+
		"Users with Bank Details: %d\n"+
		"Total Balance: Rs. %s\n\n"+
		"Transactions\n"+
		"Approved Deposits: %d\n"+
		"Approved Withdrawals: %d\n"+
		"Pending Transactions: %d\n\n"+
		"Use /pending to view pending transactions.",
		stats.TotalUsers, stats.UsersWithBankDetails, stats.TotalBalance.String(),
		stats.ApprovedDeposits, stats.ApprovedWithdrawals, stats.PendingTransactions)
}

func amountLabel(a decimal.NullDecimal) string {
	if !a.Valid {
		return "N/A"
	}
	return a.Decimal.String()
}

func titleKind(kind domain.Kind) string {
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orNotSet(s string) string {
	if s == "" {
		return "Not set"
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
