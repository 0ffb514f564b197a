// Package bot - прикладная логика чат-бота поверх users.Store.
// Бот:
//   - регистрирует каждое входящее сообщение (один Upsert на сообщение);
//   - отвечает на /start карточкой пользователя;
//   - разбирает команды с префиксом (по умолчанию "!": !help, !stats, !credits и др.),
//     часть из них доступна только владельцу (!topusers, !setpremium, !addcredits ...);
//   - на обычный текст отвечает эхом;
//   - ограничивает частоту ответов одному пользователю (x/time/rate),
//     при этом сообщение всё равно учитывается в статистике.
//
// Транспорт боту не известен: ответы уходят через Sender, входящие
// сообщения приходят в HandleMessage. Один стор можно делить между
// несколькими ботами.
//
// Пример:
//
//	b := bot.New(store, client,
//	    bot.WithPrefix("!"),
//	    bot.WithOwner("123456789"),
//	    bot.WithRateLimit(1, 5),
//	)
//	_ = b.HandleMessage(ctx, bot.Message{ChatID: 1, Text: "!ping", From: who})
package bot
