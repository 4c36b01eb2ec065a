package notification

import (
	"fmt"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
)

// renderMessage builds the email for a lifecycle outcome. Templates are
// plain fmt strings; the product speaks Russian to its users.
func renderMessage(kind domain.NotificationKind, user *domain.User, nc Context) ports.Message {
	switch kind {
	case domain.NotificationRenewalSuccess:
		return ports.Message{
			To:      user.Email,
			Subject: "Подписка продлена",
			Body: fmt.Sprintf(
				"Здравствуйте, %s!\n\n"+
					"Оплата по тарифу «%s» прошла успешно: списано %s ₽.\n"+
					"Подписка действует до %s, на баланс зачислено %d проверок.\n\n"+
					"Команда ChecklyTool",
				user.Name, nc.PlanName, nc.AmountRubles,
				nc.ExpiresAt.Format("02.01.2006"), nc.Credits,
			),
		}

	case domain.NotificationPaymentRetry:
		return ports.Message{
			To:      user.Email,
			Subject: "Не удалось продлить подписку",
			Body: fmt.Sprintf(
				"Здравствуйте, %s!\n\n"+
					"Мы не смогли списать оплату по тарифу «%s».\n"+
					"Следующая попытка — через %d дня(ей). Проверьте карту или "+
					"обновите способ оплаты в личном кабинете, чтобы не потерять доступ.\n\n"+
					"Команда ChecklyTool",
				user.Name, nc.PlanName, nc.NextRetryInDays,
			),
		}

	case domain.NotificationSuspended:
		return ports.Message{
			To:      user.Email,
			Subject: "Подписка приостановлена",
			Body: fmt.Sprintf(
				"Здравствуйте, %s!\n\n"+
					"После повторной неудачной оплаты подписка по тарифу «%s» "+
					"приостановлена, аккаунт переведён на бесплатный тариф.\n"+
					"Оформить подписку заново можно в личном кабинете.\n\n"+
					"Команда ChecklyTool",
				user.Name, nc.PlanName,
			),
		}

	default:
		return ports.Message{
			To:      user.Email,
			Subject: "ChecklyTool",
			Body:    fmt.Sprintf("Здравствуйте, %s!", user.Name),
		}
	}
}
