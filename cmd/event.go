package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/ardiwinata/qms-compliance/internal/core/events"
	"github.com/ardiwinata/qms-compliance/internal/notification"
	"github.com/ardiwinata/qms-compliance/pkg/logger"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish test events, monitor event bus, inspect handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [principal-id]",
	Short: "Publish a test notification event",
	Long:  `Publish a notification request for the given principal and watch it flow through the dispatcher`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var eventKind string

func publishTestEvent(principalArg string) {
	log := logger.L()

	principalID, err := strconv.ParseInt(principalArg, 10, 64)
	if err != nil {
		log.Error("principal id must be numeric", "value", principalArg)
		return
	}

	bus := events.NewEventBus(log)

	dispatcher := notification.NewDispatcher(notification.Config{}, &notification.LogSender{Logger: log}, log)
	defer dispatcher.Stop()
	dispatcher.SubscribeBus(bus)

	testEvent := events.NewNotificationRequestedEvent(principalID, eventKind, map[string]any{
		"message": "test notification",
		"source":  "cli-command",
	})

	log.Info("publishing test event", "event_type", testEvent.EventType(), "event_id", testEvent.EventID())

	if err := bus.Publish(context.Background(), testEvent); err != nil {
		log.Error("failed to publish event", "error", err)
		return
	}

	time.Sleep(200 * time.Millisecond)
	log.Info("test event published successfully")
}

func init() {
	publishEventCmd.Flags().StringVar(&eventKind, "kind", "approval.step_assigned", "Notification kind to publish")

	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
