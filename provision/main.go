package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"portal-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("provisioning starting")

	connStr, tables, err := resolveConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		log.Fatalf("table service: %v", err)
	}
	for _, name := range []string{tables.Events, tables.Registrations, tables.Messages, tables.Notifications} {
		if err := createTable(ctx, svc, name); err != nil {
			log.Fatalf("create table %s: %v", name, err)
		}
		log.WithField("table", name).Info("table ready")
	}

	if err := createQueue(ctx, connStr, tables.RepairQueue); err != nil {
		log.Fatalf("create queue %s: %v", tables.RepairQueue, err)
	}
	log.WithField("queue", tables.RepairQueue).Info("queue ready")

	log.Info("provisioning complete")
}

// resolveConfig reads the storage settings and reports every missing
// variable at once, so a broken deployment surfaces the full list.
func resolveConfig() (string, storage.Tables, error) {
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tables := storage.Tables{
		Events:        os.Getenv("EVENTS_TABLE"),
		Registrations: os.Getenv("REGISTRATIONS_TABLE"),
		Messages:      os.Getenv("MESSAGES_TABLE"),
		Notifications: os.Getenv("NOTIFICATIONS_TABLE"),
		RepairQueue:   os.Getenv("REPAIR_QUEUE"),
	}
	var missing []string
	for key, val := range map[string]string{
		"STORAGE_CONNECTION_STRING": connStr,
		"EVENTS_TABLE":              tables.Events,
		"REGISTRATIONS_TABLE":       tables.Registrations,
		"MESSAGES_TABLE":            tables.Messages,
		"NOTIFICATIONS_TABLE":       tables.Notifications,
		"REPAIR_QUEUE":              tables.RepairQueue,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", storage.Tables{}, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return connStr, tables, nil
}

func createTable(ctx context.Context, svc *aztables.ServiceClient, name string) error {
	_, err := svc.NewClient(name).CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			log.WithField("table", name).Debug("table already exists")
			return nil
		}
		return err
	}
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			log.WithField("queue", name).Debug("queue already exists")
			return nil
		}
		return err
	}
	return nil
}
