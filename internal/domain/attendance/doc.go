// Package attendance содержит доменную модель "утренней переклички" группы.
//
// Каждый участник группы обещает время подъёма (WakeupTime), отмечается,
// когда проснулся, и раз в сутки группа получает общий результат: либо
// серия (streak) продолжается, либо обнуляется.
//
// # Основные сущности
//
//   - Member - состояние одного участника: обещанное время, последняя
//     отметка, флаг "отмечался сегодня" и недельная квота освобождений.
//   - Group - участники группы и текущая/лучшая серия.
//   - ExemptionPolicy - правила освобождения ("ぐっすり"): не позже 22:00,
//     не чаще одного раза в неделю.
//   - Evaluate - ежедневная проверка группы, единственная операция,
//     которая затрагивает сразу нескольких участников.
//
// # Архитектурные принципы
//
//  1. Нет внешних зависимостей - только стандартная библиотека и pkg/timeutil
//  2. Все календарные вычисления идут через timeutil.Calendar
//  3. Текущее время всегда передаётся параметром, пакет не читает часы сам
//  4. Ошибки валидации никогда не меняют состояние
//
// Пример:
//
//	cal := timeutil.DefaultCalendar()
//	group, _ := NewGroup("chat-1", now)
//	member, _, _ := group.EnsureMember("user-1", "Taro", now, cal)
//	member.SetWakeupTime(MustWakeupTime(7, 0))
//	err := SubmitReport(member, now, cal)
//	outcome := Evaluate(group, now, cal)
package attendance
