package usecase

import (
	"context"
	"time"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/debounce"
	"github.com/sirupsen/logrus"
)

const (
	// debounceSlack es el margen bajo el cual la entrada se considera vencida.
	debounceSlack = 100 * time.Millisecond
	// debounceMaxNap acota cada sleep del worker para que el heartbeat renueve
	// el flag worker:active mucho antes de que expire su TTL.
	debounceMaxNap = 5 * time.Second

	defaultDebounceWindow = 5 * time.Second
	defaultWorkerTTL      = 60 * time.Second
)

type debounceService struct {
	store   debounce.IDebounceStore
	trigger debounce.Trigger
	window  time.Duration
	ttl     time.Duration
}

// NewDebounceService agrupa ráfagas de mensajes por chat: cada Enqueue empuja
// el disparo a now+window y el worker ejecuta el trigger una sola vez con el
// último mensaje observado.
func NewDebounceService(store debounce.IDebounceStore, trigger debounce.Trigger, cfg coreconfig.RouterConfig) debounce.IDebounceUsecase {
	window := defaultDebounceWindow
	if cfg.DebounceSeconds > 0 {
		window = time.Duration(cfg.DebounceSeconds) * time.Second
	}
	ttl := defaultWorkerTTL
	if cfg.WorkerTTLSeconds > 0 {
		ttl = time.Duration(cfg.WorkerTTLSeconds) * time.Second
	}
	return &debounceService{store: store, trigger: trigger, window: window, ttl: ttl}
}

func (s *debounceService) Enqueue(ctx context.Context, chatID, messageID, priority string) error {
	if chatID == "" {
		return debounce.ErrEmptyChatID
	}

	// Los mensajes urgentes esperan media ventana: la ráfaga se sigue
	// absorbiendo pero la respuesta sale antes.
	window := s.window
	switch priority {
	case "urgent", "high":
		window = s.window / 2
	}

	entry := debounce.Entry{
		RunAt:     unixSeconds(time.Now().Add(window)),
		MessageID: messageID,
		Priority:  priority,
	}
	if err := s.store.SetContext(ctx, chatID, entry); err != nil {
		return err
	}

	claimed, err := s.store.ClaimWorker(ctx, chatID, s.ttl)
	if err != nil {
		return err
	}
	if claimed {
		logrus.Debugf("[Debounce] Worker spawned for chat %s", chatID)
		go s.runWorker(chatID)
	}
	return nil
}

// Supervise reclama chats con cola pendiente pero sin worker vivo. Se invoca
// al arrancar el proceso: tras un crash los flags expiran por TTL y las colas
// quedan huérfanas hasta este barrido.
func (s *debounceService) Supervise(ctx context.Context) error {
	chats, err := s.store.PendingChats(ctx)
	if err != nil {
		return err
	}

	respawned := 0
	for _, chatID := range chats {
		alive, err := s.store.WorkerAlive(ctx, chatID)
		if err != nil {
			logrus.Warnf("[Debounce] Supervisor check for chat %s: %v", chatID, err)
			continue
		}
		if alive {
			continue
		}
		claimed, err := s.store.ClaimWorker(ctx, chatID, s.ttl)
		if err != nil {
			logrus.Warnf("[Debounce] Supervisor claim for chat %s: %v", chatID, err)
			continue
		}
		if claimed {
			respawned++
			go s.runWorker(chatID)
		}
	}

	if respawned > 0 {
		logrus.Infof("[Debounce] Respawned %d orphaned worker(s)", respawned)
	}
	return nil
}

// runWorker duerme hasta que la entrada vence y dispara el trigger una sola
// vez. Limpia cola y flag ANTES de ejecutar: un mensaje que llegue durante el
// trabajo abre un ciclo nuevo en lugar de perderse.
func (s *debounceService) runWorker(chatID string) {
	// El worker sobrevive al request que lo creó.
	ctx := context.Background()

	for {
		entry, err := s.store.GetContext(ctx, chatID)
		if err != nil {
			// El flag expira por TTL y Supervise reintenta en el próximo arranque.
			logrus.Errorf("[Debounce] Worker read for chat %s: %v", chatID, err)
			return
		}
		if entry == nil {
			return
		}

		remaining := time.Duration((entry.RunAt - unixSeconds(time.Now())) * float64(time.Second))
		if remaining > debounceSlack {
			time.Sleep(min(remaining, debounceMaxNap))
			if err := s.store.Heartbeat(ctx, chatID, s.ttl); err != nil {
				logrus.Warnf("[Debounce] Heartbeat for chat %s: %v", chatID, err)
			}
			continue
		}

		if err := s.store.Clear(ctx, chatID); err != nil {
			logrus.Errorf("[Debounce] Clear for chat %s: %v", chatID, err)
			return
		}
		logrus.Debugf("[Debounce] Window elapsed for chat %s, triggering with message %s", chatID, entry.MessageID)
		s.trigger(ctx, chatID, entry.MessageID, entry.Priority)
		return
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
