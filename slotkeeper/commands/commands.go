package commands

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/ellavondegurechaff/slotkeeper/slotkeeper"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/config"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/handlers"
)

var Commands = []discord.ApplicationCommandCreate{
	Create,
	Revoke,
	Restore,
	Hold,
	Unhold,
	Transfer,
	Move,
	Extend,
	Rename,
	AddPings,
	ResetPings,
	PingsReset,
	Clean,
	Reconcile,
	ResendInfo,
	GenSlotKey,
	SlotStats,
	List,
	Nuke,
	Pings,
	SlotInfo,
	TimeLeft,
	RecoveryPanel,
	Backup,
}

// Register routes every slash command, component and modal to its handler.
func Register(h handler.Router, b *slotkeeper.Bot) {
	// Lifecycle
	h.Command("/create", handlers.WrapWithLogging("create", staffOnly(b, CreateHandler(b))))
	h.Autocomplete("/create", PlanAutocomplete(b))
	h.Command("/revoke", handlers.WrapWithLogging("revoke", RevokeHandler(b)))
	h.Command("/restore", handlers.WrapWithLogging("restore", RestoreHandler(b)))
	h.Command("/hold", handlers.WrapWithLogging("hold", HoldHandler(b)))
	h.Command("/unhold", handlers.WrapWithLogging("unhold", UnholdHandler(b)))
	h.Command("/transfer", handlers.WrapWithLogging("transfer", TransferHandler(b)))
	h.Command("/move", handlers.WrapWithLogging("move", MoveHandler(b)))
	h.Autocomplete("/move", PlanAutocomplete(b))
	h.Command("/extend", handlers.WrapWithLogging("extend", ExtendHandler(b)))
	h.Command("/rename", handlers.WrapWithLogging("rename", RenameHandler(b)))
	h.Command("/nuke", handlers.WrapWithLogging("nuke", NukeHandler(b)))
	h.Command("/clean", handlers.WrapWithLogging("clean", CleanHandler(b)))

	// Pings
	h.Command("/addpings", handlers.WrapWithLogging("addpings", AddPingsHandler(b)))
	h.Command("/resetpings", handlers.WrapWithLogging("resetpings", ResetPingsHandler(b)))
	h.Command("/pingsreset", handlers.WrapWithLogging("pingsreset", PingsResetHandler(b)))
	h.Command("/pings", handlers.WrapWithLogging("pings", PingsHandler(b)))

	// Info
	h.Command("/slotinfo", handlers.WrapWithLogging("slotinfo", SlotInfoHandler(b)))
	h.Command("/timeleft", handlers.WrapWithLogging("timeleft", TimeLeftHandler(b)))
	h.Command("/slotstats", handlers.WrapWithLogging("slotstats", SlotStatsHandler(b)))
	h.Command("/slots", handlers.WrapWithLogging("slots", ListHandler(b)))

	// Maintenance
	h.Command("/reconcile", handlers.WrapWithLogging("reconcile", ReconcileHandler(b)))
	h.Command("/resendinfo", handlers.WrapWithLogging("resendinfo", ResendInfoHandler(b)))
	h.Command("/genslotkey", handlers.WrapWithLogging("genslotkey", GenSlotKeyHandler(b)))
	h.Command("/backup", handlers.WrapWithLogging("backup", BackupHandler(b)))

	// Recovery
	h.Command("/recoverypanel", handlers.WrapWithLogging("recoverypanel", RecoveryPanelHandler(b)))
	h.Component(config.RecoveryButtonID, handlers.WrapComponentWithLogging("recovery-open", RecoveryButtonHandler(b)))
	h.Modal(config.RecoveryModalID, handlers.WrapModalWithLogging("recovery-submit", RecoveryModalHandler(b)))
	h.Component(config.CopyKeyButtonID+"/{owner}", handlers.WrapComponentWithLogging("recovery-key", CopyKeyHandler(b)))
}
