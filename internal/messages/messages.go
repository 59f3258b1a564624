package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/dverano/channelpass-bot/internal/i18n"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func ChannelInvite(lang i18n.Lang, channelName, inviteLink string) string {
	if lang == i18n.ES {
		return fmt.Sprintf("🎬 <b>¡Bienvenido a %s!</b>\n\nÚnete aquí: %s\n\n⏰ El enlace expira en 24 horas", Escape(channelName), inviteLink)
	}
	return fmt.Sprintf("🎬 <b>Welcome to %s!</b>\n\nClick here to join: %s\n\n⏰ Link expires in 24 hours", Escape(channelName), inviteLink)
}

func GrantSummary(lang i18n.Lang, granted int, failed []string) string {
	var b strings.Builder
	if lang == i18n.ES {
		b.WriteString("✅ <b>¡Acceso otorgado!</b>\n\n")
		fmt.Fprintf(&b, "📺 Canales disponibles: %d\n", granted)
		b.WriteString("🎬 ¡Disfruta del contenido exclusivo!")
		if len(failed) > 0 {
			fmt.Fprintf(&b, "\n\n⚠️ Algunos canales fallaron: %s\nContacta soporte: support@pnptv.app", Escape(strings.Join(failed, ", ")))
		}
		return b.String()
	}
	b.WriteString("✅ <b>Access Granted Successfully!</b>\n\n")
	fmt.Fprintf(&b, "📺 Channels available: %d\n", granted)
	b.WriteString("🎬 Start enjoying exclusive content now!")
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\n\n⚠️ Some channels had issues: %s\nContact support: support@pnptv.app", Escape(strings.Join(failed, ", ")))
	}
	return b.String()
}

func SubscriptionExpired(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "⚠️ <b>Suscripción expirada</b>\n\nTu acceso a los canales premium fue revocado.\n¡Renueva tu suscripción para recuperarlo!\n\nUsa /plans para ver las opciones."
	}
	return "⚠️ <b>Subscription Expired</b>\n\nYour access to premium channels has been revoked.\nRenew your subscription to regain access!\n\nUse /plans to see available options."
}

func RenewalReminder(lang i18n.Lang, plan string, expiresAt time.Time) string {
	when := expiresAt.UTC().Format("2006-01-02 15:04")
	if lang == i18n.ES {
		return fmt.Sprintf("⏳ <b>Tu suscripción expira pronto</b>\n\n💎 Plan: %s\n📅 Expira: %s UTC\n\nRenueva con /plans para no perder acceso.", Escape(plan), when)
	}
	return fmt.Sprintf("⏳ <b>Your subscription expires soon</b>\n\n💎 Plan: %s\n📅 Expires: %s UTC\n\nRenew with /plans so you don't lose access.", Escape(plan), when)
}

func PaymentConfirmed(lang i18n.Lang, plan string, amount float64, currency string, durationDays int, transactionID string) string {
	if lang == i18n.ES {
		return fmt.Sprintf(
			"🎉 <b>¡Pago confirmado!</b>\n\n✅ Suscripción activada\n💎 Plan: %s\n💰 Cantidad: $%.2f %s\n⏱ Duración: %d días\n🆔 Transacción: <code>%s</code>\n\n🎬 Los enlaces de invitación a tus canales llegan en seguida.",
			Escape(plan), amount, Escape(currency), durationDays, Escape(transactionID),
		)
	}
	return fmt.Sprintf(
		"🎉 <b>Payment Confirmed Successfully!</b>\n\n✅ Subscription activated\n💎 Plan: %s\n💰 Amount: $%.2f %s\n⏱ Duration: %d days\n🆔 Transaction: <code>%s</code>\n\n🎬 Invitation links to your channels are on the way.",
		Escape(plan), amount, Escape(currency), durationDays, Escape(transactionID),
	)
}

func PaymentProcessingError(transactionID string) string {
	return fmt.Sprintf(
		"❌ <b>Payment Processing Error</b>\n\nWe received your payment but hit a technical issue activating your subscription.\n🆔 Reference: <code>%s</code>\n\nOur team was notified and will fix this shortly.\nUrgent help: urgent@pnptv.app",
		Escape(transactionID),
	)
}

func AdminPaymentError(userID int64, transactionID, reason string) string {
	return fmt.Sprintf(
		"🚨 <b>Payment processing failed</b>\n👤 User: <code>%d</code>\n🆔 Transaction: <code>%s</code>\n❗ %s",
		userID, Escape(transactionID), Escape(reason),
	)
}

func StartWelcome(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "👋 <b>¡Hola!</b>\nAcceso a canales exclusivos por suscripción.\n\n💎 /plans — ver planes\n📊 /status — tu suscripción\nℹ️ /help — ayuda"
	}
	return "👋 <b>Welcome!</b>\nSubscription access to exclusive channels.\n\n💎 /plans — see plans\n📊 /status — your subscription\nℹ️ /help — help"
}

func Help(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "ℹ️ <b>Comandos</b>\n/plans — planes y precios\n/status — estado de tu suscripción\n/lang — cambiar idioma"
	}
	return "ℹ️ <b>Commands</b>\n/plans — plans and pricing\n/status — your subscription status\n/lang — change language"
}

func PlanLine(lang i18n.Lang, name string, price float64, durationDays, channels int) string {
	if lang == i18n.ES {
		return fmt.Sprintf("💎 <b>%s</b> — $%.2f\n⏱ %d días · 📺 %d canales", Escape(name), price, durationDays, channels)
	}
	return fmt.Sprintf("💎 <b>%s</b> — $%.2f\n⏱ %d days · 📺 %d channels", Escape(name), price, durationDays, channels)
}

func StatusActive(lang i18n.Lang, plan string, expiresAt time.Time) string {
	when := expiresAt.UTC().Format("2006-01-02 15:04")
	if lang == i18n.ES {
		return fmt.Sprintf("✅ <b>Suscripción activa</b>\n💎 Plan: %s\n📅 Expira: %s UTC", Escape(plan), when)
	}
	return fmt.Sprintf("✅ <b>Active subscription</b>\n💎 Plan: %s\n📅 Expires: %s UTC", Escape(plan), when)
}

func StatusInactive(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "🚫 <b>Sin suscripción activa</b>\nUsa /plans para suscribirte."
	}
	return "🚫 <b>No active subscription</b>\nUse /plans to subscribe."
}

func AgeGate(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "🔞 <b>Contenido para adultos</b>\n¿Confirmas que tienes 18 años o más?"
	}
	return "🔞 <b>Adult content</b>\nDo you confirm you are 18 or older?"
}

func AgeDenied(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "🚫 Este servicio es solo para mayores de 18 años."
	}
	return "🚫 This service is for adults 18+ only."
}

func Terms(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "📜 <b>Términos de servicio</b>\nAl continuar aceptas nuestros términos."
	}
	return "📜 <b>Terms of Service</b>\nBy continuing you accept our terms."
}

func ErrorDefault(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "🚫 <b>Error del servicio</b>\nInténtalo de nuevo."
	}
	return "🚫 <b>Service error</b>\nPlease try again."
}

func ErrorUnknownCommand(lang i18n.Lang) string {
	if lang == i18n.ES {
		return "❓ <b>Comando no encontrado</b>"
	}
	return "❓ <b>Command not found</b>"
}

func ChooseLanguage() string {
	return "🌐 Language / Idioma"
}
